package central

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/why-xn/infradesk/internal/audit"
	"github.com/why-xn/infradesk/internal/auth"
	"github.com/why-xn/infradesk/internal/models"
	"github.com/why-xn/infradesk/internal/store"
)

// AuthHandlers provides HTTP handlers for authentication and operator
// management.
type AuthHandlers struct {
	store         store.Store
	jwtManager    *auth.JWTManager
	recorder      *audit.Recorder
	refreshExpiry time.Duration
}

// NewAuthHandlers creates a new AuthHandlers instance.
func NewAuthHandlers(s store.Store, jm *auth.JWTManager, recorder *audit.Recorder, refreshExpiry time.Duration) *AuthHandlers {
	if recorder == nil {
		recorder = audit.NewRecorder()
	}
	return &AuthHandlers{
		store:         s,
		jwtManager:    jm,
		recorder:      recorder,
		refreshExpiry: refreshExpiry,
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	ExpiresIn    int              `json:"expires_in"`
	Operator     *models.Operator `json:"operator"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

type createOperatorRequest struct {
	Email    string              `json:"email" binding:"required"`
	Name     string              `json:"name"`
	Role     models.OperatorRole `json:"role"`
	Password string              `json:"password" binding:"required"`
}

type updateOperatorRequest struct {
	Name     *string              `json:"name"`
	Role     *models.OperatorRole `json:"role"`
	IsActive *bool                `json:"is_active"`
	Password *string              `json:"password"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HandleLogin authenticates an operator and returns JWT tokens.
func (h *AuthHandlers) HandleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	op, err := h.store.GetOperatorByEmail(c.Request.Context(), normalizeEmail(req.Email))
	if err != nil {
		log.Printf("[auth] login lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if op == nil || !auth.CheckPassword(req.Password, op.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if !op.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "account is disabled"})
		return
	}

	h.issueTokens(c, op)
}

// HandleRefresh exchanges a refresh token for new access and refresh tokens.
// The presented refresh token is consumed.
func (h *AuthHandlers) HandleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ctx := c.Request.Context()
	rt, err := h.store.GetRefreshTokenByHash(ctx, auth.HashRefreshToken(req.RefreshToken))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if rt == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	if err := h.store.DeleteRefreshToken(ctx, rt.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if time.Now().After(rt.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token expired"})
		return
	}

	op, err := h.store.GetOperatorByID(ctx, rt.OperatorID)
	if err != nil || op == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "operator not found"})
		return
	}
	if !op.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "account is disabled"})
		return
	}

	h.issueTokens(c, op)
}

// HandleLogout invalidates a refresh token. Unknown tokens are ignored.
func (h *AuthHandlers) HandleLogout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ctx := c.Request.Context()
	rt, err := h.store.GetRefreshTokenByHash(ctx, auth.HashRefreshToken(req.RefreshToken))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if rt != nil {
		if err := h.store.DeleteRefreshToken(ctx, rt.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// HandleMe returns the authenticated operator.
func (h *AuthHandlers) HandleMe(c *gin.Context) {
	claims := auth.GetOperatorFromContext(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	op, err := h.store.GetOperatorByID(c.Request.Context(), claims.OperatorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if op == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "operator not found"})
		return
	}
	c.JSON(http.StatusOK, op)
}

// HandleChangePassword changes the authenticated operator's password and
// revokes every refresh token issued to them.
func (h *AuthHandlers) HandleChangePassword(c *gin.Context) {
	claims := auth.GetOperatorFromContext(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := auth.ValidatePassword(req.NewPassword); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	op, err := h.store.GetOperatorByID(ctx, claims.OperatorID)
	if err != nil || op == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if !auth.CheckPassword(req.CurrentPassword, op.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "current password is incorrect"})
		return
	}

	newHash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	op.PasswordHash = newHash
	err = h.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.UpdateOperator(ctx, op); err != nil {
			return err
		}
		return tx.DeleteRefreshTokensByOperator(ctx, op.ID)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

// HandleListOperators returns every operator. Admin only.
func (h *AuthHandlers) HandleListOperators(c *gin.Context) {
	ops, err := h.store.ListOperators(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if ops == nil {
		ops = []*models.Operator{}
	}
	c.JSON(http.StatusOK, gin.H{"operators": ops})
}

// HandleCreateOperator adds an operator. Admin only.
func (h *AuthHandlers) HandleCreateOperator(c *gin.Context) {
	var req createOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.Role == "" {
		req.Role = models.RoleViewer
	}
	if !req.Role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	op := &models.Operator{
		Email:        normalizeEmail(req.Email),
		Name:         strings.TrimSpace(req.Name),
		Role:         req.Role,
		PasswordHash: hash,
		IsActive:     true,
	}
	ctx := c.Request.Context()
	err = h.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.CreateOperator(ctx, op); err != nil {
			return err
		}
		return h.recorder.Record(ctx, tx, audit.Change{
			Table: "operators", EntityType: "operator", EntityID: op.ID, EntityName: op.Email,
			Operation: models.OpCreate, New: op, Actor: auth.Actor(c),
		})
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, op)
}

// HandleUpdateOperator changes name, role, active flag or password. An admin
// cannot demote or disable their own account.
func (h *AuthHandlers) HandleUpdateOperator(c *gin.Context) {
	var req updateOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	id := c.Param("id")
	self := auth.GetOperatorFromContext(c)
	if self != nil && self.OperatorID == id {
		if (req.Role != nil && *req.Role != models.RoleAdmin) || (req.IsActive != nil && !*req.IsActive) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot demote or disable your own account"})
			return
		}
	}

	ctx := c.Request.Context()
	var updated *models.Operator
	err := h.store.InTx(ctx, func(tx store.Store) error {
		current, err := tx.GetOperatorByID(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return errOperatorNotFound
		}
		old := *current
		next := *current
		if req.Name != nil {
			next.Name = strings.TrimSpace(*req.Name)
		}
		if req.Role != nil {
			if !req.Role.Valid() {
				return errUnknownRole
			}
			next.Role = *req.Role
		}
		if req.IsActive != nil {
			next.IsActive = *req.IsActive
		}
		if req.Password != nil {
			if err := auth.ValidatePassword(*req.Password); err != nil {
				return badRequest(err)
			}
			hash, err := auth.HashPassword(*req.Password)
			if err != nil {
				return err
			}
			next.PasswordHash = hash
		}
		if err := tx.UpdateOperator(ctx, &next); err != nil {
			return err
		}
		if !next.IsActive || req.Password != nil {
			if err := tx.DeleteRefreshTokensByOperator(ctx, id); err != nil {
				return err
			}
		}
		updated = &next
		return h.recorder.Record(ctx, tx, audit.Change{
			Table: "operators", EntityType: "operator", EntityID: id, EntityName: next.Email,
			Operation: models.OpUpdate, Old: &old, New: &next, Actor: auth.Actor(c),
		})
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *AuthHandlers) issueTokens(c *gin.Context, op *models.Operator) {
	accessToken, err := h.jwtManager.GenerateAccessToken(op)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	plaintext, refreshHash, err := h.jwtManager.GenerateRefreshToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	rt := &models.RefreshToken{
		OperatorID: op.ID,
		TokenHash:  refreshHash,
		ExpiresAt:  time.Now().Add(h.refreshExpiry),
	}
	if err := h.store.CreateRefreshToken(c.Request.Context(), rt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: plaintext,
		ExpiresIn:    int(h.jwtManager.AccessExpiry().Seconds()),
		Operator:     op,
	})
}
