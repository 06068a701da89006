package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/fitfast/internal/core/domain"
)

func testOrder(id string) domain.Order {
	now := time.Now()
	return domain.Order{
		ID:         id,
		RequestID:  "req-" + id,
		UserID:     "user-1",
		ItemID:     "item-1",
		Color:      "red",
		Size:       domain.SizeM,
		Quantity:   1,
		StockModel: domain.StockModelVariant,
		Status:     domain.OrderStatusConfirmed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestMemoryOrderRepository_CreateAndGet(t *testing.T) {
	repo := NewMemoryOrderRepository()
	ctx := context.Background()

	require.NoError(t, repo.CreateOrder(ctx, testOrder("o-1")))
	assert.ErrorIs(t, repo.CreateOrder(ctx, testOrder("o-1")), ErrOrderExists)

	order, err := repo.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "red", order.Color)
	assert.Equal(t, domain.SizeM, order.Size)

	_, err = repo.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestMemoryOrderRepository_Transition(t *testing.T) {
	repo := NewMemoryOrderRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateOrder(ctx, testOrder("o-1")))

	ok, err := repo.TransitionOrder(ctx, "o-1", []domain.OrderStatus{domain.OrderStatusPending}, domain.OrderStatusCancelled)
	require.NoError(t, err)
	assert.False(t, ok, "confirmed order is not pending")

	ok, err = repo.TransitionOrder(ctx, "o-1", []domain.OrderStatus{domain.OrderStatusConfirmed}, domain.OrderStatusReturned)
	require.NoError(t, err)
	assert.True(t, ok)

	order, _ := repo.GetOrder(ctx, "o-1")
	assert.Equal(t, domain.OrderStatusReturned, order.Status)

	_, err = repo.TransitionOrder(ctx, "missing", []domain.OrderStatus{domain.OrderStatusConfirmed}, domain.OrderStatusCancelled)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestMemoryOrderRepository_TransitionOnce(t *testing.T) {
	repo := NewMemoryOrderRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateOrder(ctx, testOrder("o-1")))

	var applied atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.TransitionOrder(ctx, "o-1",
				[]domain.OrderStatus{domain.OrderStatusConfirmed}, domain.OrderStatusCancelled)
			if err == nil && ok {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), applied.Load())
}
