// Package healthrpc exposes the standard gRPC health-checking protocol
// (grpc.health.v1) so orchestrators (Kubernetes, load balancers) can probe
// liveness/readiness the same way they would for any other gRPC service in
// the fleet.
package healthrpc

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server wraps grpc.Server plus the health.Server whose serving status it
// reports.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
}

// New builds a Server with the health service registered under the empty
// service name (the convention the protocol uses for "overall" status).
func New() *Server {
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	return &Server{grpcServer: grpcServer, health: healthServer}
}

// SetServing updates the overall serving status reported to health checks.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// SetComponentServing updates the serving status for a named component
// (e.g. "leader", "sqsbridge"), so a client that cares about a specific
// subsystem can check it independently of overall status.
func (s *Server) SetComponentServing(component string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(component, status)
}

// Serve blocks accepting connections on lis until the listener is closed or
// the server is stopped.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Stop gracefully stops the gRPC server, marking every service NOT_SERVING
// first so in-flight health checks observe the shutdown.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
