package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/why-xn/infradesk/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAuthMiddleware(t *testing.T) {
	jm := NewJWTManager("test-secret-at-least-32-chars!!", 24*time.Hour)

	tests := []struct {
		name       string
		authHeader string
		wantCode   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"invalid format", "Basic abc123", http.StatusUnauthorized},
		{"invalid token", "Bearer invalid.jwt.token", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			_, r := gin.CreateTestContext(w)

			r.Use(AuthMiddleware(jm))
			r.GET("/test", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req, _ := http.NewRequest("GET", "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			r.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, w.Code)
			}
		})
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	jm := NewJWTManager("test-secret-at-least-32-chars!!", 24*time.Hour)
	token, _ := jm.GenerateAccessToken(testOperator())

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)

	var gotClaims *OperatorClaims
	var gotActor string
	r.Use(AuthMiddleware(jm))
	r.GET("/test", func(c *gin.Context) {
		gotClaims = GetOperatorFromContext(c)
		gotActor = Actor(c)
		c.Status(http.StatusOK)
	})

	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotClaims == nil {
		t.Fatal("expected claims in context")
	}
	if gotClaims.OperatorID != "op-123" {
		t.Errorf("expected op-123, got %q", gotClaims.OperatorID)
	}
	if gotActor != "test@example.com" {
		t.Errorf("expected actor test@example.com, got %q", gotActor)
	}
}

func TestRoleMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		role      models.OperatorRole
		wantWrite int
		wantAdmin int
	}{
		{"admin", models.RoleAdmin, http.StatusOK, http.StatusOK},
		{"operator", models.RoleOperator, http.StatusOK, http.StatusForbidden},
		{"viewer", models.RoleViewer, http.StatusForbidden, http.StatusForbidden},
		{"empty role", "", http.StatusForbidden, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, r := gin.CreateTestContext(httptest.NewRecorder())
			r.Use(func(c *gin.Context) {
				c.Set(userContextKey, &OperatorClaims{OperatorID: "op-123", Role: tt.role})
				c.Next()
			})
			r.GET("/write", WriteRequired(), func(c *gin.Context) { c.Status(http.StatusOK) })
			r.GET("/admin", AdminRequired(), func(c *gin.Context) { c.Status(http.StatusOK) })

			for path, want := range map[string]int{"/write": tt.wantWrite, "/admin": tt.wantAdmin} {
				w := httptest.NewRecorder()
				req, _ := http.NewRequest("GET", path, nil)
				r.ServeHTTP(w, req)
				if w.Code != want {
					t.Errorf("%s: expected %d, got %d", path, want, w.Code)
				}
			}
		})
	}
}

func TestAdminRequired_NoUser(t *testing.T) {
	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)

	r.Use(AdminRequired())
	r.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req, _ := http.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestGetOperatorFromContext_NoUser(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := GetOperatorFromContext(c); got != nil {
		t.Error("expected nil when no user in context")
	}
	if got := Actor(c); got != "" {
		t.Errorf("expected empty actor, got %q", got)
	}
}
