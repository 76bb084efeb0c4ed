package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"brandhub.dev/demodata/internal/obs"
)

// GRPCHealth serves the standard gRPC health service backed by the readiness probe.
type GRPCHealth struct {
	server *health.Server
	probe  ReadyProbe
	log    *zap.Logger
}

// NewGRPCHealth starts in NOT_SERVING until the first Refresh.
func NewGRPCHealth(probe ReadyProbe, log *zap.Logger) *GRPCHealth {
	if log == nil {
		log = zap.NewNop()
	}
	h := &GRPCHealth{server: health.NewServer(), probe: probe, log: log}
	h.server.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register attaches the health service to s.
func (h *GRPCHealth) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Refresh runs the probe once and publishes the result.
func (h *GRPCHealth) Refresh(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if err := h.probe.Check(ctx); err != nil {
		h.log.Warn("readiness probe failed", zap.Error(err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	obs.SetReady(st == healthpb.HealthCheckResponse_SERVING)
	h.server.SetServingStatus("", st)
	h.server.SetServingStatus(serviceName, st)
}

// Watch refreshes every interval until ctx is done, then marks the service down.
func (h *GRPCHealth) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	h.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}
