package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/fitfast/internal/adapter/handler"
	"github.com/rl1809/fitfast/internal/adapter/storage"
	"github.com/rl1809/fitfast/internal/core/domain"
	"github.com/rl1809/fitfast/internal/core/service"
	"github.com/rl1809/fitfast/internal/platform/config"
	"github.com/rl1809/fitfast/internal/platform/logger"
	"github.com/rl1809/fitfast/internal/platform/metrics"
	"github.com/rl1809/fitfast/internal/port"
)

const (
	shutdownTimeout = 5 * time.Second
	demoItemID      = "linen-shirt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.Environment, cfg.ServiceName)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

type backends struct {
	stock  port.StockStore
	cache  port.CacheRepository
	orders port.OrderRepository
	close  []func() error
}

// shutdown closes every opened connection, newest first.
func (b *backends) shutdown(zl *zap.Logger) {
	for i := len(b.close) - 1; i >= 0; i-- {
		if err := b.close[i](); err != nil {
			zl.Warn("failed to close connection", zap.Error(err))
		}
	}
	b.close = nil
}

// Replaced in tests.
var (
	pingMySQL    = func(ctx context.Context, db *sql.DB) error { return db.PingContext(ctx) }
	migrateMySQL = storage.Migrate
)

func run(cfg config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	b, err := openBackends(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer func() {
		b.shutdown(zl)
		zl.Info("connections closed")
	}()

	orderService := service.NewOrderService(b.stock, b.cache, b.orders, cfg.QueueSize,
		service.WithLogger(zl), service.WithMetrics(m))

	if cfg.SeedDemo {
		if err := seedDemo(ctx, b.stock, orderService); err != nil {
			return fmt.Errorf("seed demo item: %w", err)
		}
		zl.Info("seeded demo item", zap.String("item_id", demoItemID))
	}

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			orderService.RunWorker(id)
		}(i)
	}
	zl.Info("started workers", zap.Int("count", cfg.WorkerCount))

	grpcServer := grpc.NewServer()
	handler.RegisterStockServiceServer(grpcServer, handler.NewGRPCHandler(orderService, zl))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(orderService, zl, reg).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		zl.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		zl.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			zl.Warn("HTTP shutdown", zap.Error(err))
		}
		zl.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		zl.Info("gRPC server stopped")
		return nil
	})

	err = g.Wait()

	// Close order queue and wait for workers
	orderService.Close()
	wg.Wait()
	zl.Info("workers stopped")

	return err
}

func openBackends(ctx context.Context, cfg config.Config, zl *zap.Logger) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			b.shutdown(zl)
		}
	}()

	var db *sql.DB
	if cfg.UsesMySQL() {
		db, err = sql.Open("mysql", cfg.MySQL.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		b.close = append(b.close, db.Close)
		db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

		if err := pingMySQL(ctx, db); err != nil {
			return nil, fmt.Errorf("ping mysql: %w", err)
		}
		if err := migrateMySQL(ctx, db); err != nil {
			return nil, fmt.Errorf("migrate mysql: %w", err)
		}
		zl.Info("connected to mysql", zap.String("addr", cfg.MySQL.Addr))
	}

	var rdb *redis.Client
	if cfg.UsesRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		b.close = append(b.close, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		zl.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	switch cfg.StockBackend {
	case config.BackendRedis:
		b.stock = storage.NewRedisStockStore(rdb)
	case config.BackendMySQL:
		b.stock = storage.NewMySQLStockStore(db)
	default:
		b.stock = storage.NewMemoryStockStore()
	}

	switch cfg.OrderBackend {
	case config.BackendMySQL:
		b.orders = storage.NewMySQLOrderRepository(db)
	default:
		b.orders = storage.NewMemoryOrderRepository()
	}

	switch cfg.CacheBackend {
	case config.BackendRedis:
		b.cache = storage.NewRedisCache(rdb)
	default:
		b.cache = storage.NewMemoryCache()
	}

	zl.Info("storage ready",
		zap.String("stock", cfg.StockBackend),
		zap.String("orders", cfg.OrderBackend),
		zap.String("cache", cfg.CacheBackend))
	return b, nil
}

// seedDemo creates a small variant catalogue entry unless it already exists.
func seedDemo(ctx context.Context, stock port.StockStore, orderService *service.OrderService) error {
	now := time.Now()
	err := stock.CreateItem(ctx, domain.Item{
		ID:          demoItemID,
		Name:        "Linen Shirt",
		PriceCents:  4900,
		GarmentType: domain.GarmentTop,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if errors.Is(err, storage.ErrItemExists) {
		return nil
	}
	if err != nil {
		return err
	}

	l := orderService.Ledger(demoItemID)
	for _, color := range []string{"white", "navy", "sage"} {
		for _, size := range domain.Sizes {
			if err := l.SetStock(ctx, color, string(size), 10); err != nil {
				return err
			}
		}
	}
	return nil
}
