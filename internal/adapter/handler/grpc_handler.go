package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-check name reported next to the server-wide "".
const ServiceName = "storefront.Checkout"

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter serves grpc.health.v1 with a status that follows the store:
// SERVING while pings succeed, NOT_SERVING otherwise.
type HealthReporter struct {
	server   *health.Server
	store    Pinger
	logger   *zap.Logger
	interval time.Duration
}

func NewHealthReporter(store Pinger, logger *zap.Logger, interval time.Duration) *HealthReporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HealthReporter{
		server:   health.NewServer(),
		store:    store,
		logger:   logger,
		interval: interval,
	}
}

func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
	reflection.Register(s)
}

// Check pings the store once and publishes the result.
func (h *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("store ping failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
	return status
}

func (h *HealthReporter) Run(ctx context.Context) {
	h.Check(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Shutdown flips every service to NOT_SERVING so load balancers drain first.
func (h *HealthReporter) Shutdown() {
	h.server.Shutdown()
}
