package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/messaging"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/config"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

func main() {
	cfg := config.MustLoad()

	logger, err := config.NewLogger(config.LoggerConfig{Level: cfg.LogLevel, Env: cfg.Env})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	if cfg.MySQL.MigrateOnStart {
		if err := storage.Migrate(cfg.MySQL.DSN); err != nil {
			logger.Fatal("failed to migrate mysql", zap.Error(err))
		}
		logger.Info("migrations applied")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logger.Fatal("failed to connect mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}
	logger.Info("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	// Initialize adapters
	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.Redis.IdempotencyTTL, cfg.Redis.ProductCacheTTL)
	m := metrics.New(prometheus.NewRegistry())

	var publisher port.EventPublisher
	var kafkaPublisher *messaging.KafkaPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher = messaging.NewKafkaPublisher(messaging.NewWriter(cfg.Kafka.Brokers), logger)
		publisher = kafkaPublisher
	} else {
		logger.Warn("no kafka brokers configured, events will only be logged")
		publisher = messaging.NewLogPublisher(logger)
	}

	// Initialize services
	inventory := service.NewInventory()
	ledger := service.NewWalletLedger(m)
	orderService := service.NewOrderService(mysqlAdapter, redisAdapter, inventory, ledger, m, logger, service.OrderServiceConfig{
		OrderTopic: cfg.Kafka.OrderTopic,
		TxTimeout:  cfg.Checkout.TxTimeout,
	})
	walletService := service.NewWalletService(mysqlAdapter, ledger, logger, cfg.Checkout.TxTimeout)
	cartService := service.NewCartService(mysqlAdapter)
	catalogService := service.NewCatalogService(mysqlAdapter, redisAdapter, inventory, logger, cfg.Checkout.TxTimeout)

	// Start outbox relays and the user consumer
	var wg sync.WaitGroup
	for i := 0; i < cfg.Outbox.Workers; i++ {
		relay := service.NewOutboxRelay(i, mysqlAdapter, publisher, m, logger, cfg.Outbox.BatchSize, cfg.Outbox.Interval, cfg.Outbox.PublishTimeout)
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Run(ctx)
		}()
	}
	logger.Info("started outbox relays", zap.Int("count", cfg.Outbox.Workers))

	var consumer *messaging.UserConsumer
	if len(cfg.Kafka.Brokers) > 0 {
		reader := messaging.NewReader(cfg.Kafka.Brokers, cfg.Kafka.UserTopic, cfg.Kafka.GroupID)
		consumer = messaging.NewUserConsumer(reader, walletService, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(ctx)
		}()
	}

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	health := handler.NewHealthReporter(mysqlAdapter, logger, cfg.GRPC.HealthInterval)
	health.Register(grpcServer)

	wg.Add(1)
	go func() {
		defer wg.Done()
		health.Run(ctx)
	}()

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPC.Addr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(handler.Services{
		Orders:  orderService,
		Wallets: walletService,
		Carts:   cartService,
		Catalog: catalogService,
	}, handler.NewAuthenticator(cfg.Auth.JWTSecret), m, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpHandler.Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	// Stop HTTP server
	health.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	// Stop gRPC server
	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	// Stop relays and consumer, then wait for in-flight batches
	cancel()
	wg.Wait()
	logger.Info("workers stopped")

	// Close connections
	if consumer != nil {
		consumer.Close()
	}
	if kafkaPublisher != nil {
		kafkaPublisher.Close()
	}
	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}
