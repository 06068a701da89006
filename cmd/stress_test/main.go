package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/fitfast/internal/adapter/storage"
	"github.com/rl1809/fitfast/internal/core/domain"
	"github.com/rl1809/fitfast/internal/core/service"
	"github.com/rl1809/fitfast/internal/platform/config"
	"github.com/rl1809/fitfast/internal/platform/logger"
)

const (
	color         = "black"
	size          = "M"
	initialStock  = 20
	totalRequests = 50
	queueSize     = 100
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zl, err := logger.New("warn", cfg.Environment, "fitfast-stress")
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		zl.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	// A fresh item per run, so there is nothing to clean up.
	itemID := "stress-" + uuid.NewString()
	stock := storage.NewRedisStockStore(rdb)
	if err := stock.CreateItem(ctx, domain.Item{ID: itemID, Name: "Stress Tee", CreatedAt: time.Now()}); err != nil {
		zl.Fatal("failed to create item", zap.Error(err))
	}

	orderService := service.NewOrderService(stock, storage.NewRedisCache(rdb), storage.NewMemoryOrderRepository(), queueSize,
		service.WithLogger(zl))
	l := orderService.Ledger(itemID)
	if err := l.SetStock(ctx, color, size, initialStock); err != nil {
		zl.Fatal("failed to set stock", zap.Error(err))
	}

	// Persist queued orders in the background
	var workers sync.WaitGroup
	workers.Add(1)
	go func() {
		defer workers.Done()
		orderService.RunWorker(0)
	}()

	var successCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()

			_, err := orderService.Purchase(ctx, uuid.NewString(), fmt.Sprintf("user-%d", userID), itemID, color, size, 1)
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	orderService.Close()
	workers.Wait()

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Variant:          %s / %s\n", color, size)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	finalStock, err := l.GetStock(ctx, color, size)
	if err != nil {
		zl.Fatal("failed to read final stock", zap.Error(err))
	}
	fmt.Printf("Final Variant Stock: %d\n", finalStock)

	if finalStock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", finalStock)
	}

	if err := l.CheckIntegrity(ctx); err != nil {
		fmt.Printf("FAIL: %v\n", err)
	} else {
		fmt.Println("PASS: Roll-ups match variant stock")
	}
}
