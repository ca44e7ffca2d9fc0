package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

// NewGRPCServer builds a gRPC server exposing the standard health service
// for platform probes. The returned updater goroutine function keeps the
// serving status in step with the readiness probe.
func NewGRPCServer(rc readinessChecker) (*grpc.Server, func(ctx context.Context)) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	update := func(ctx context.Context) {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				hs.Shutdown()
				return
			case <-ticker.C:
				status := healthpb.HealthCheckResponse_SERVING
				if err := rc.Check(ctx); err != nil {
					status = healthpb.HealthCheckResponse_NOT_SERVING
				}
				hs.SetServingStatus(serviceName, status)
			}
		}
	}
	return srv, update
}
