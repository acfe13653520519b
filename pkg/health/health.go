package health

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server exposes the standard gRPC health protocol so orchestrators can probe
// the service without speaking its HTTP API.
type Server struct {
	addr    string
	grpc    *grpc.Server
	health  *health.Server
	service string
}

func NewServer(port int, service string) *Server {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{addr: fmt.Sprintf(":%d", port), grpc: gs, health: hs, service: service}
}

func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(s.service, status)
	s.health.SetServingStatus("", status)
}

func (s *Server) Serve(lis net.Listener) error {
	s.SetServing(true)
	return s.grpc.Serve(lis)
}

func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

// Stop flips every service to NOT_SERVING and drains in-flight calls, forcing
// a hard stop when ctx expires first.
func (s *Server) Stop(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.grpc.Stop()
		return ctx.Err()
	case <-stopped:
		return nil
	}
}
