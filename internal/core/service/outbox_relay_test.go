package service

import (
	"context"
	"errors"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/testutil"
)

func TestOutboxRelay_Flush(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedScenario("user-1")
	env.store.AddWallet("user-1", d("30000"))
	order, err := env.orders.CreateOrder(ctx, "user-1", CheckoutRequest{})
	require.NoError(t, err)

	pub := &testutil.RecordingPublisher{}
	relay := NewOutboxRelay(0, env.store, pub, env.metrics, zap.NewNop(), 1, time.Millisecond, time.Second)

	n, err := relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "batch size limits one flush")

	n, err = relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	published := pub.Published()
	require.Len(t, published, 2)
	assert.Equal(t, order.ID, published[0].AggregateID)
	assert.Equal(t, 2.0, promtest.ToFloat64(env.metrics.OutboxPublished))

	for _, e := range env.store.Events() {
		assert.NotNil(t, e.PublishedAt)
	}
}

func TestOutboxRelay_FailureKeepsEventPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedScenario("user-1")
	_, err := env.orders.CreateOrder(ctx, "user-1", CheckoutRequest{PaymentMethod: "cod"})
	require.NoError(t, err)

	pub := &testutil.RecordingPublisher{Err: errors.New("broker unavailable")}
	relay := NewOutboxRelay(0, env.store, pub, env.metrics, zap.NewNop(), 10, time.Millisecond, time.Second)

	n, err := relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	events := env.store.Events()
	require.Len(t, events, 1)
	assert.Nil(t, events[0].PublishedAt)
	assert.Equal(t, 1, events[0].Attempts)
	require.NotNil(t, events[0].LastError)
	assert.Equal(t, "broker unavailable", *events[0].LastError)
	assert.Equal(t, 1.0, promtest.ToFloat64(env.metrics.OutboxFailed))

	pub.Err = nil
	n, err = relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// stalledPublisher never answers; it returns only when its context ends.
type stalledPublisher struct{}

func (stalledPublisher) Publish(ctx context.Context, _ domain.OutboxEvent) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestOutboxRelay_StalledBrokerTimesOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedScenario("user-1")
	_, err := env.orders.CreateOrder(ctx, "user-1", CheckoutRequest{PaymentMethod: "cod"})
	require.NoError(t, err)

	relay := NewOutboxRelay(0, env.store, stalledPublisher{}, env.metrics, zap.NewNop(), 10, time.Millisecond, 20*time.Millisecond)

	start := time.Now()
	n, err := relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Less(t, time.Since(start), time.Second)

	events := env.store.Events()
	require.Len(t, events, 1)
	assert.Nil(t, events[0].PublishedAt)
	assert.Equal(t, 1, events[0].Attempts)
	require.NotNil(t, events[0].LastError)
	assert.Equal(t, context.DeadlineExceeded.Error(), *events[0].LastError)
}

func TestOutboxRelay_RunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)

	env.seedScenario("user-1")
	_, err := env.orders.CreateOrder(context.Background(), "user-1", CheckoutRequest{PaymentMethod: "cod"})
	require.NoError(t, err)

	pub := &testutil.RecordingPublisher{}
	relay := NewOutboxRelay(1, env.store, pub, env.metrics, zap.NewNop(), 10, 5*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(pub.Published()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}
