package central

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/why-xn/infradesk/internal/alerts"
	"github.com/why-xn/infradesk/internal/audit"
	"github.com/why-xn/infradesk/internal/auth"
	"github.com/why-xn/infradesk/internal/capacity"
	"github.com/why-xn/infradesk/internal/inventory"
	"github.com/why-xn/infradesk/internal/models"
	"github.com/why-xn/infradesk/internal/monitoring"
	"github.com/why-xn/infradesk/internal/reporting"
	"github.com/why-xn/infradesk/internal/store"
)

// Server is the main infradesk service that runs both HTTP and gRPC servers.
type Server struct {
	config     *Config
	store      store.Store
	engine     *alerts.Engine
	monitor    *monitoring.Monitor
	health     *GRPCServer
	http       *HTTPServer
	httpServer *http.Server
	grpcServer *grpc.Server
	stopCh     chan struct{}
	now        func() time.Time
}

// NewServer opens and migrates the configured database and wires every
// component on top of it.
func NewServer(cfg *Config) (*Server, error) {
	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(context.Background()); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	s, err := newServer(cfg, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	return s, nil
}

func newServer(cfg *Config, st store.Store) (*Server, error) {
	registry := monitoring.NewRegistry(cfg.Monitoring)
	monitor := monitoring.NewMonitor(registry)
	recorder := audit.NewRecorder()
	ledger := capacity.NewLedger(cfg.Ledger.AllowOvercommit, monitor)
	engine := alerts.NewEngine(cfg.Alerts)
	jm := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	if err := bootstrapAdmin(context.Background(), st, recorder, cfg.Auth); err != nil {
		return nil, err
	}

	httpHandler := NewHTTPServer(HTTPDeps{
		Service:       inventory.NewService(st, ledger, recorder),
		Engine:        engine,
		JWTManager:    jm,
		Recorder:      recorder,
		RefreshExpiry: cfg.Auth.RefreshTokenExpiry,
		Registry:      registry,
		Monitor:       monitor,
	})
	grpcHandler := NewGRPCServer()

	grpcSrv := grpc.NewServer()
	grpcHandler.RegisterWithServer(grpcSrv)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpHandler.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		config:     cfg,
		store:      st,
		engine:     engine,
		monitor:    monitor,
		health:     grpcHandler,
		http:       httpHandler,
		httpServer: httpSrv,
		grpcServer: grpcSrv,
		stopCh:     make(chan struct{}),
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// bootstrapAdmin creates the configured admin when no operator exists yet.
func bootstrapAdmin(ctx context.Context, st store.Store, recorder *audit.Recorder, cfg AuthConfig) error {
	if cfg.BootstrapAdminEmail == "" {
		return nil
	}
	ops, err := st.ListOperators(ctx)
	if err != nil {
		return fmt.Errorf("listing operators: %w", err)
	}
	if len(ops) > 0 {
		return nil
	}
	if recorder == nil {
		recorder = audit.NewRecorder()
	}
	if err := auth.ValidatePassword(cfg.BootstrapAdminPassword); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	hash, err := auth.HashPassword(cfg.BootstrapAdminPassword)
	if err != nil {
		return fmt.Errorf("hashing bootstrap password: %w", err)
	}
	op := &models.Operator{
		Email:        normalizeEmail(cfg.BootstrapAdminEmail),
		Name:         "Administrator",
		Role:         models.RoleAdmin,
		PasswordHash: hash,
		IsActive:     true,
	}
	err = st.InTx(ctx, func(tx store.Store) error {
		if err := tx.CreateOperator(ctx, op); err != nil {
			return err
		}
		return recorder.Record(ctx, tx, audit.Change{
			Table: "operators", EntityType: "operator", EntityID: op.ID, EntityName: op.Email,
			Operation: models.OpCreate, New: op,
		})
	})
	if err != nil {
		return fmt.Errorf("creating bootstrap admin: %w", err)
	}
	log.Printf("[server] created bootstrap admin %s", op.Email)
	return nil
}

// Run starts both HTTP and gRPC servers and handles graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 2)

	s.maintain(context.Background())
	go s.runMaintenance()

	go func() {
		if err := s.startGRPC(); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		if err := s.startHTTP(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	return s.waitForShutdown(errCh)
}

func (s *Server) startGRPC() error {
	addr := fmt.Sprintf(":%d", s.config.Server.GRPCPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	log.Printf("[server] gRPC server listening on %s", addr)
	return s.grpcServer.Serve(lis)
}

func (s *Server) startHTTP() error {
	log.Printf("[server] HTTP server listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// runMaintenance refreshes health, alert gauges and expired refresh tokens
// until the server stops.
func (s *Server) runMaintenance() {
	ticker := time.NewTicker(s.config.Server.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.maintain(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) maintain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	up := s.store.Ping(ctx) == nil
	s.health.SetServing(up)
	s.monitor.SetStoreUp(up)
	if !up {
		log.Printf("[server] database ping failed")
		return
	}

	now := s.now()
	snap, err := reporting.LoadSnapshot(ctx, s.store)
	if err != nil {
		log.Printf("[server] loading snapshot: %v", err)
	} else {
		_, counts := s.engine.Evaluate(reporting.AlertInput(snap), now)
		s.monitor.SetAlertCounts(counts)
	}

	n, err := s.store.CleanupExpiredRefreshTokens(ctx, now)
	if err != nil {
		log.Printf("[server] cleaning refresh tokens: %v", err)
	} else if n > 0 {
		log.Printf("[server] removed %d expired refresh token(s)", n)
	}
}

func (s *Server) waitForShutdown(errCh chan error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		s.shutdown()
		return err
	case sig := <-sigCh:
		log.Printf("[server] received signal %v, shutting down...", sig)
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	close(s.stopCh)
	s.health.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.grpcServer.GracefulStop()
	log.Println("[server] gRPC server stopped")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	log.Println("[server] HTTP server stopped")

	return s.store.Close()
}
