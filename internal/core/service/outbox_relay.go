package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

// OutboxRelay delivers events recorded in the outbox table. Several relays
// can run at once; each claims a disjoint batch.
type OutboxRelay struct {
	id        int
	store     port.TxRunner
	publisher port.EventPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	batchSize int
	interval  time.Duration
	timeout   time.Duration
}

// NewOutboxRelay builds a relay. publishTimeout bounds each publish, since
// the claim transaction stays open while the broker is called.
func NewOutboxRelay(id int, store port.TxRunner, publisher port.EventPublisher, m *metrics.Metrics, logger *zap.Logger, batchSize int, interval, publishTimeout time.Duration) *OutboxRelay {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}
	return &OutboxRelay{
		id:        id,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With(zap.Int("relay", id)),
		batchSize: batchSize,
		interval:  interval,
		timeout:   publishTimeout,
	}
}

// Run flushes the outbox every interval until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("outbox flush failed", zap.Error(err))
			}
		}
	}
}

// Flush publishes one batch and returns how many events were delivered.
// Failed events stay pending with their attempt count raised.
func (r *OutboxRelay) Flush(ctx context.Context) (int, error) {
	published := 0

	err := r.store.RunInTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		published = 0

		events, err := tx.ClaimPendingEvents(ctx, r.batchSize)
		if err != nil {
			return err
		}

		for _, e := range events {
			if pubErr := r.publish(ctx, e); pubErr != nil {
				r.metrics.OutboxFailed.Inc()
				r.logger.Warn("failed to publish event",
					zap.Int64("event_id", e.ID),
					zap.String("type", e.EventType),
					zap.Int("attempts", e.Attempts+1),
					zap.Error(pubErr),
				)
				if err := tx.MarkEventFailed(ctx, e.ID, pubErr.Error()); err != nil {
					return err
				}
				continue
			}

			if err := tx.MarkEventPublished(ctx, e.ID); err != nil {
				return err
			}
			r.metrics.OutboxPublished.Inc()
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, nil
}

func (r *OutboxRelay) publish(ctx context.Context, e domain.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.publisher.Publish(ctx, e)
}
