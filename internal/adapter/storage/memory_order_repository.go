package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rl1809/fitfast/internal/core/domain"
)

type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[string]domain.Order)}
}

func (r *MemoryOrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return ErrOrderExists
	}
	r.orders[order.ID] = order
	return nil
}

func (r *MemoryOrderRepository) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &order, nil
}

func (r *MemoryOrderRepository) TransitionOrder(ctx context.Context, orderID string, from []domain.OrderStatus, to domain.OrderStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if !slices.Contains(from, order.Status) {
		return false, nil
	}
	order.Status = to
	order.UpdatedAt = time.Now()
	r.orders[orderID] = order
	return true, nil
}
