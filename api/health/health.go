// Package health exposes the scheduler's liveness over the standard gRPC health
// checking protocol. The ServiceName entry is SERVING while a simulation is in
// progress and NOT_SERVING once it has finished or been aborted.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service entry describing the simulation.
const ServiceName = "srtfsched.Scheduler"

// Server is a gRPC server carrying only the health service.
type Server struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	log      *slog.Logger
}

// NewServer listens on addr. Use ":0" to pick a free port.
func NewServer(addr string, logger *slog.Logger) (*Server, error) {
	if addr == "" {
		return nil, errors.New("cannot create health server, address is empty")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("cannot create health server: %w", err)
	}

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	return &Server{server: server, health: hs, listener: listener, log: logger}, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// SetSimulating flips the ServiceName status.
func (s *Server) SetSimulating(on bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if on {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Run serves until ctx is done, then stops gracefully.
func (s *Server) Run(ctx context.Context) error {
	ec := make(chan error, 1)

	go func() {
		s.log.Info("starting gRPC health server", "addr", s.listener.Addr().String())
		ec <- s.server.Serve(s.listener)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-ec:
		if err != nil {
			s.log.Error("gRPC health server returned error", "err", err)
		}
	}

	s.health.Shutdown()
	s.server.GracefulStop()
	return err
}
