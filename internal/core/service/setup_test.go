package service

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/testutil"
)

type testEnv struct {
	store   *testutil.MemStore
	cache   *testutil.MemCache
	metrics *metrics.Metrics
	ledger  *WalletLedger
	orders  *OrderService
	wallets *WalletService
	carts   *CartService
	catalog *CatalogService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := testutil.NewMemStore()
	cache := testutil.NewMemCache()
	m := metrics.New(prometheus.NewRegistry())
	logger := zap.NewNop()
	inventory := NewInventory()
	ledger := NewWalletLedger(m)

	return &testEnv{
		store:   store,
		cache:   cache,
		metrics: m,
		ledger:  ledger,
		orders: NewOrderService(store, cache, inventory, ledger, m, logger, OrderServiceConfig{
			OrderTopic: "orders.events",
			TxTimeout:  time.Second,
		}),
		wallets: NewWalletService(store, ledger, logger, time.Second),
		carts:   NewCartService(store),
		catalog: NewCatalogService(store, cache, inventory, logger, time.Second),
	}
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seedScenario stocks two products and fills user's cart with 2×A and 1×B,
// a 25000 order.
func (e *testEnv) seedScenario(userID string) (a, b domain.Product) {
	a = e.store.AddProduct(domain.Product{Name: "Product A", Price: d("10000"), Stock: 10})
	b = e.store.AddProduct(domain.Product{Name: "Product B", Price: d("5000"), Stock: 5})
	e.store.AddCartLine(userID, a.ID, 2)
	e.store.AddCartLine(userID, b.ID, 1)
	return a, b
}
