package health

import (
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/gateway"
)

// GatewayHealth mirrors payment gateway circuit state into the standard gRPC
// health service so load balancers and probes can see an open circuit.
type GatewayHealth struct {
	server *grpchealth.Server
}

func NewGatewayHealth() *GatewayHealth {
	server := grpchealth.NewServer()
	server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &GatewayHealth{server: server}
}

// Register exposes the health service on s.
func (h *GatewayHealth) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Track marks the named gateway serving until its breaker says otherwise.
func (h *GatewayHealth) Track(name string) {
	h.server.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
}

// OnStateChange is wired as the breaker's state-change hook.
func (h *GatewayHealth) OnStateChange(name string, _, to gateway.CircuitState) {
	status := healthpb.HealthCheckResponse_SERVING
	if to == gateway.CircuitOpen {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus(name, status)
}

func (h *GatewayHealth) Server() healthpb.HealthServer {
	return h.server
}

func (h *GatewayHealth) Shutdown() {
	h.server.Shutdown()
}
