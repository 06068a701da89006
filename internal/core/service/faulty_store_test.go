package service

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rl1809/fitfast/internal/adapter/storage"
	"github.com/rl1809/fitfast/internal/core/domain"
)

var errStoreDown = errors.New("stock store unavailable")

// deadlineStockStore fails once ctx is done, like the Redis and MySQL stores.
type deadlineStockStore struct {
	*storage.MemoryStockStore
}

func (d deadlineStockStore) Snapshot(ctx context.Context, itemID string) (domain.StockSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.StockSnapshot{}, err
	}
	return d.MemoryStockStore.Snapshot(ctx, itemID)
}

func (d deadlineStockStore) IncrementVariantStock(ctx context.Context, itemID string, key domain.VariantKey, quantity int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.MemoryStockStore.IncrementVariantStock(ctx, itemID, key, quantity)
}

func (d deadlineStockStore) SaveAggregation(ctx context.Context, itemID string, view domain.AggregationView, version int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.MemoryStockStore.SaveAggregation(ctx, itemID, view, version)
}

// faultyStockStore fails the switched-on operations with errStoreDown.
type faultyStockStore struct {
	*storage.MemoryStockStore
	failIncrement atomic.Bool
	failSave      atomic.Bool
}

func (f *faultyStockStore) IncrementVariantStock(ctx context.Context, itemID string, key domain.VariantKey, quantity int) error {
	if f.failIncrement.Load() {
		return errStoreDown
	}
	return f.MemoryStockStore.IncrementVariantStock(ctx, itemID, key, quantity)
}

func (f *faultyStockStore) SaveAggregation(ctx context.Context, itemID string, view domain.AggregationView, version int64) error {
	if f.failSave.Load() {
		return errStoreDown
	}
	return f.MemoryStockStore.SaveAggregation(ctx, itemID, view, version)
}
