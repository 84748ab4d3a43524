package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/testutil"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []kafka.Message
}

func newFakeReader(values ...string) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(values))}
	for i, v := range values {
		r.msgs <- kafka.Message{Offset: int64(i), Value: []byte(v)}
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.msgs:
		return m, nil
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type flakyWallets struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyWallets) OpenWallet(_ context.Context, userID string) (*domain.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("database unavailable")
	}
	return &domain.Wallet{ID: "w-" + userID, UserID: userID}, nil
}

func runConsumer(t *testing.T, c *UserConsumer) (stop func()) {
	t.Helper()
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("consumer did not stop")
		}
	}
}

func TestUserConsumer_OpensWallets(t *testing.T) {
	store := testutil.NewMemStore()
	ledger := service.NewWalletLedger(metrics.New(prometheus.NewRegistry()))
	wallets := service.NewWalletService(store, ledger, zap.NewNop(), time.Second)

	reader := newFakeReader(
		`{"user_id":"u1","email":"a@example.com"}`,
		`{"user_id":"u2"}`,
		`{"user_id":"u1"}`,
	)
	stop := runConsumer(t, NewUserConsumer(reader, wallets, zap.NewNop()))
	defer stop()

	require.Eventually(t, func() bool { return reader.commits() == 3 }, time.Second, 5*time.Millisecond)

	w1, err := wallets.GetWallet(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, w1.Balance.IsZero())
	_, err = wallets.GetWallet(context.Background(), "u2")
	assert.NoError(t, err)
}

func TestUserConsumer_SkipsMalformedEvents(t *testing.T) {
	wallets := &flakyWallets{}
	reader := newFakeReader(`not json`, `{"email":"no-user@example.com"}`)
	stop := runConsumer(t, NewUserConsumer(reader, wallets, zap.NewNop()))
	defer stop()

	require.Eventually(t, func() bool { return reader.commits() == 2 }, time.Second, 5*time.Millisecond)
	wallets.mu.Lock()
	defer wallets.mu.Unlock()
	assert.Zero(t, wallets.calls)
}

func TestUserConsumer_RetriesUntilHandled(t *testing.T) {
	wallets := &flakyWallets{failures: 2}
	reader := newFakeReader(`{"user_id":"u1"}`)
	stop := runConsumer(t, NewUserConsumer(reader, wallets, zap.NewNop()))
	defer stop()

	require.Eventually(t, func() bool { return reader.commits() == 1 }, time.Second, 5*time.Millisecond)
	wallets.mu.Lock()
	defer wallets.mu.Unlock()
	assert.Equal(t, 3, wallets.calls)
}
