package central

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/why-xn/infradesk/internal/alerts"
	"github.com/why-xn/infradesk/internal/audit"
	"github.com/why-xn/infradesk/internal/auth"
	"github.com/why-xn/infradesk/internal/capacity"
	"github.com/why-xn/infradesk/internal/inventory"
	"github.com/why-xn/infradesk/internal/monitoring"
	"github.com/why-xn/infradesk/internal/store"
)

var (
	errOperatorNotFound = fmt.Errorf("operator: %w", inventory.ErrNotFound)
	errUnknownRole      = fmt.Errorf("%w: unknown role", inventory.ErrInvalid)
)

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", inventory.ErrInvalid, err)
}

// HTTPDeps are the collaborators the REST API is built from. Registry and
// Monitor are optional.
type HTTPDeps struct {
	Service       *inventory.Service
	Engine        *alerts.Engine
	JWTManager    *auth.JWTManager
	Recorder      *audit.Recorder
	RefreshExpiry time.Duration
	Registry      *monitoring.Registry
	Monitor       *monitoring.Monitor
}

// HTTPServer handles REST API requests from the admin panel and the CLI.
type HTTPServer struct {
	router   *gin.Engine
	store    store.Store
	svc      *inventory.Service
	engine   *alerts.Engine
	jwt      *auth.JWTManager
	auth     *AuthHandlers
	registry *monitoring.Registry
	now      func() time.Time
}

// NewHTTPServer creates a new HTTP server with configured routes.
func NewHTTPServer(deps HTTPDeps) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	if deps.Monitor != nil {
		router.Use(deps.Monitor.GinMiddleware())
	}

	engine := deps.Engine
	if engine == nil {
		engine = alerts.NewEngine(alerts.DefaultThresholds())
	}

	s := &HTTPServer{
		router:   router,
		store:    deps.Service.Store(),
		svc:      deps.Service,
		engine:   engine,
		jwt:      deps.JWTManager,
		auth:     NewAuthHandlers(deps.Service.Store(), deps.JWTManager, deps.Recorder, deps.RefreshExpiry),
		registry: deps.Registry,
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.registry != nil {
		s.router.GET("/metrics", gin.WrapH(s.registry.Handler()))
	}

	authGroup := s.router.Group("/auth")
	{
		authGroup.POST("/login", s.auth.HandleLogin)
		authGroup.POST("/refresh", s.auth.HandleRefresh)
		authGroup.POST("/logout", s.auth.HandleLogout)
	}

	api := s.router.Group("/api/v1", auth.AuthMiddleware(s.jwt))
	write := api.Group("", auth.WriteRequired())
	admin := api.Group("", auth.AdminRequired())

	api.GET("/me", s.auth.HandleMe)
	api.POST("/me/password", s.auth.HandleChangePassword)

	admin.GET("/operators", s.auth.HandleListOperators)
	admin.POST("/operators", s.auth.HandleCreateOperator)
	admin.PATCH("/operators/:id", s.auth.HandleUpdateOperator)

	api.GET("/customers", s.handleListCustomers)
	api.GET("/customers/:id", s.handleGetCustomer)
	api.GET("/customers/:id/contacts", s.handleListCustomerContacts)
	write.POST("/customers", s.handleCreateCustomer)
	write.PATCH("/customers/:id", s.handleUpdateCustomer)
	write.DELETE("/customers/:id", s.handleDeleteCustomer)
	write.POST("/customers/:id/contacts", s.handleCreateCustomerContact)

	api.GET("/contacts", s.handleListContacts)
	api.GET("/contacts/:id", s.handleGetContact)
	write.PATCH("/contacts/:id", s.handleUpdateContact)
	write.DELETE("/contacts/:id", s.handleDeleteContact)

	api.GET("/contracts", s.handleListContracts)
	api.GET("/contracts/:id", s.handleGetContract)
	write.POST("/contracts", s.handleCreateContract)
	write.PATCH("/contracts/:id", s.handleUpdateContract)
	write.DELETE("/contracts/:id", s.handleDeleteContract)

	api.GET("/gp-accounts", s.handleListGPAccounts)
	api.GET("/gp-accounts/:id", s.handleGetGPAccount)
	write.POST("/gp-accounts", s.handleCreateGPAccount)
	write.PATCH("/gp-accounts/:id", s.handleUpdateGPAccount)
	write.DELETE("/gp-accounts/:id", s.handleDeleteGPAccount)

	api.GET("/clusters", s.handleListClusters)
	api.GET("/clusters/:id", s.handleGetCluster)
	write.POST("/clusters", s.handleCreateCluster)
	write.PATCH("/clusters/:id", s.handleUpdateCluster)
	write.DELETE("/clusters/:id", s.handleDeleteCluster)

	api.GET("/nodes", s.handleListNodes)
	api.GET("/nodes/:id", s.handleGetNode)
	write.POST("/nodes", s.handleCreateNode)
	write.PATCH("/nodes/:id", s.handleUpdateNode)
	write.DELETE("/nodes/:id", s.handleDeleteNode)

	api.GET("/vms", s.handleListVMs)
	api.GET("/vms/:id", s.handleGetVM)
	write.POST("/vms", s.handleCreateVM)
	write.PATCH("/vms/:id", s.handleUpdateVM)
	write.DELETE("/vms/:id", s.handleDeleteVM)

	api.GET("/dashboard", s.handleDashboard)
	api.GET("/notifications", s.handleNotifications)
	api.GET("/analytics/growth", s.handleGrowth)
	api.GET("/analytics/customers", s.handleCustomerSummaries)
	api.GET("/audit-logs", s.handleAuditLogs)
	api.GET("/activity-logs", s.handleActivityLogs)

	api.GET("/export/:entity", s.handleExport)
	api.GET("/templates/:entity", s.handleTemplate)
	write.POST("/import/:entity/preview", s.handleImportPreview)
}

// handleHealth reports whether the database answers.
func (s *HTTPServer) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// respondError maps service errors to status codes. Unexpected errors are
// logged and hidden from the client.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, inventory.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, inventory.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, inventory.ErrHasDependents), errors.Is(err, store.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, capacity.ErrInsufficientCapacity):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		log.Printf("[http] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// requestLogger returns a middleware that logs HTTP requests.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("[http] %s %s %d %s", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}
