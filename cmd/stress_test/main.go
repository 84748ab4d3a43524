package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/metrics"
)

const (
	initialStock  = 20
	totalRequests = 50
	maxAttempts   = 3
)

var (
	unitPrice = decimal.NewFromInt(100)
	deposit   = decimal.NewFromInt(1000)
)

func main() {
	ctx := context.Background()
	cfg := config.MustLoad()
	logger := zap.NewNop()

	if err := storage.Migrate(cfg.MySQL.DSN); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Initialize adapters and services
	store := storage.NewMySQLAdapter(db)
	cache := storage.NewRedisAdapter(rdb, cfg.Redis.IdempotencyTTL, cfg.Redis.ProductCacheTTL)
	m := metrics.New(prometheus.NewRegistry())
	inventory := service.NewInventory()
	ledger := service.NewWalletLedger(m)

	orders := service.NewOrderService(store, cache, inventory, ledger, m, logger, service.OrderServiceConfig{
		OrderTopic: cfg.Kafka.OrderTopic,
		TxTimeout:  cfg.Checkout.TxTimeout,
	})
	wallets := service.NewWalletService(store, ledger, logger, cfg.Checkout.TxTimeout)
	carts := service.NewCartService(store)
	catalog := service.NewCatalogService(store, cache, inventory, logger, cfg.Checkout.TxTimeout)

	// Seed one product and a funded buyer per request
	run := uuid.NewString()[:8]
	product, err := catalog.CreateProduct(ctx, service.NewProduct{
		Category: "stress",
		Name:     "Flash item " + run,
		Code:     "STRESS-" + run,
		Price:    unitPrice,
		Stock:    initialStock,
	})
	if err != nil {
		log.Fatalf("failed to create product: %v", err)
	}

	users := make([]string, totalRequests)
	for i := range users {
		users[i] = fmt.Sprintf("stress-%s-%d", run, i)
		if _, err := wallets.OpenWallet(ctx, users[i]); err != nil {
			log.Fatalf("failed to open wallet: %v", err)
		}
		if _, err := wallets.Deposit(ctx, users[i], deposit, ""); err != nil {
			log.Fatalf("failed to deposit: %v", err)
		}
		if _, err := carts.AddItem(ctx, users[i], product.ID, 1); err != nil {
			log.Fatalf("failed to fill cart: %v", err)
		}
	}

	// Counters
	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent checkouts
	var wg sync.WaitGroup
	start := time.Now()

	for _, userID := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()

			err := checkout(ctx, orders, userID)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				log.Printf("checkout %s: %v", userID, err)
				failCount.Add(1)
			}
		}(userID)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold out:         %d\n", soldOut)
	fmt.Printf("Other failures:   %d\n", failCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	final, err := store.GetProduct(ctx, product.ID)
	if err != nil {
		log.Fatalf("failed to read product: %v", err)
	}
	fmt.Printf("Final Stock: %d\n", final.Stock)
	if final.Stock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", final.Stock)
	}

	inconsistent := 0
	for _, userID := range users {
		audit, err := wallets.Audit(ctx, userID)
		if err != nil || !audit.Consistent {
			inconsistent++
		}
	}
	if inconsistent == 0 {
		fmt.Println("PASS: Every wallet matches its ledger")
	} else {
		fmt.Printf("FAIL: %d wallets disagree with their ledger\n", inconsistent)
	}
}

// checkout retries lock conflicts the way a client honouring 503 would.
func checkout(ctx context.Context, orders *service.OrderService, userID string) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, err = orders.CreateOrder(ctx, userID, service.CheckoutRequest{
			PaymentMethod:   domain.PaymentMethodWallet,
			ShippingAddress: "1 Stress Way",
			PhoneNumber:     "0000000000",
		})
		if !errors.Is(err, domain.ErrRetryable) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return err
}
