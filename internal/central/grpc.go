package central

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// InventoryService is the health service name that tracks the database.
const InventoryService = "infradesk.Inventory"

// GRPCServer serves the standard health protocol. Status follows the last
// database ping made by the maintenance loop.
type GRPCServer struct {
	health *health.Server
}

// NewGRPCServer creates a health server that reports NOT_SERVING until the
// first successful ping.
func NewGRPCServer() *GRPCServer {
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(InventoryService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GRPCServer{health: h}
}

// RegisterWithServer registers the health service and server reflection.
func (s *GRPCServer) RegisterWithServer(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
	reflection.Register(srv)
}

// SetServing flips both the overall and the inventory status.
func (s *GRPCServer) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(InventoryService, status)
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (s *GRPCServer) Shutdown() {
	s.health.Shutdown()
}
