package api

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/markus-lassfolk/acsd/pkg/acs"
	"github.com/markus-lassfolk/acsd/pkg/logx"
)

// HealthServer serves grpc.health.v1 with one service per radio. A radio is
// SERVING until a cycle fails and again after the next successful one. The
// empty service name reports the daemon itself.
type HealthServer struct {
	health *health.Server
	listen string
	logger *logx.Logger

	mu       sync.Mutex
	grpc     *grpc.Server
	listener net.Listener
}

// NewHealthServer creates a health server; listen may be empty to disable serving
func NewHealthServer(listen string, logger *logx.Logger) *HealthServer {
	h := &HealthServer{
		health: health.NewServer(),
		listen: listen,
		logger: logger,
	}
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return h
}

// Register marks radios as serving
func (h *HealthServer) Register(radios ...string) {
	for _, name := range radios {
		h.health.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
}

// SelectionFinished implements acs.Observer
func (h *HealthServer) SelectionFinished(_ context.Context, o acs.Outcome) {
	status := healthpb.HealthCheckResponse_SERVING
	if !o.Success() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus(o.Interface, status)
}

// Check answers a health check without going through the network
func (h *HealthServer) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Start listens and serves in the background
func (h *HealthServer) Start() error {
	if h.listen == "" {
		h.logger.Debug("gRPC health service disabled")
		return nil
	}

	ln, err := net.Listen("tcp", h.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.listen, err)
	}

	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(srv, h.health)

	h.mu.Lock()
	h.grpc = srv
	h.listener = ln
	h.mu.Unlock()

	h.logger.Info("Starting gRPC health service", "address", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil {
			h.logger.Error("gRPC health service failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, empty before Start
func (h *HealthServer) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Stop marks everything NOT_SERVING and stops the server
func (h *HealthServer) Stop() {
	h.health.Shutdown()

	h.mu.Lock()
	srv := h.grpc
	h.grpc = nil
	h.mu.Unlock()

	if srv != nil {
		srv.GracefulStop()
		h.logger.Info("gRPC health service stopped")
	}
}
