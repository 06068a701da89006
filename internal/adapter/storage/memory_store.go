package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/fitfast/internal/core/domain"
)

type memoryItem struct {
	item        domain.Item
	variants    domain.VariantTable
	colors      map[string]int
	total       int
	aggregation domain.AggregationView
	version     int64
}

// MemoryStockStore keeps stock in process memory. Every check-and-mutate runs
// under one lock, which makes it atomic for all callers sharing the store.
type MemoryStockStore struct {
	mu    sync.RWMutex
	items map[string]*memoryItem
}

func NewMemoryStockStore() *MemoryStockStore {
	return &MemoryStockStore{items: make(map[string]*memoryItem)}
}

func (m *MemoryStockStore) CreateItem(ctx context.Context, item domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.ID]; ok {
		return ErrItemExists
	}
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	m.items[item.ID] = &memoryItem{
		item:        item,
		variants:    make(domain.VariantTable),
		colors:      make(map[string]int),
		aggregation: domain.AggregateFlat(0),
	}
	return nil
}

func (m *MemoryStockStore) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[itemID]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	item := it.item
	return &item, nil
}

func (m *MemoryStockStore) Snapshot(ctx context.Context, itemID string) (domain.StockSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[itemID]
	if !ok {
		return domain.StockSnapshot{}, domain.ErrItemNotFound
	}
	colors := make(map[string]int, len(it.colors))
	for c, n := range it.colors {
		colors[c] = n
	}
	return domain.StockSnapshot{
		ItemID:      itemID,
		Variants:    it.variants.Clone(),
		ColorStock:  colors,
		Total:       it.total,
		Aggregation: cloneView(it.aggregation),
		Version:     it.version,
	}, nil
}

func (m *MemoryStockStore) GetVariantStock(ctx context.Context, itemID string, key domain.VariantKey) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if it, ok := m.items[itemID]; ok {
		return it.variants[key], nil
	}
	return 0, nil
}

func (m *MemoryStockStore) SetVariantStock(ctx context.Context, itemID string, key domain.VariantKey, quantity int) error {
	return m.mutate(itemID, func(it *memoryItem) bool {
		if quantity <= 0 {
			delete(it.variants, key)
		} else {
			it.variants[key] = quantity
		}
		return true
	})
}

func (m *MemoryStockStore) DecrementVariantStock(ctx context.Context, itemID string, key domain.VariantKey, quantity int) (bool, error) {
	var applied bool
	err := m.mutate(itemID, func(it *memoryItem) bool {
		applied = takeFrom(it.variants, key, quantity)
		return applied
	})
	return applied, err
}

func (m *MemoryStockStore) IncrementVariantStock(ctx context.Context, itemID string, key domain.VariantKey, quantity int) error {
	return m.mutate(itemID, func(it *memoryItem) bool {
		it.variants[key] += quantity
		if it.variants[key] <= 0 {
			delete(it.variants, key)
		}
		return true
	})
}

func (m *MemoryStockStore) GetColorStock(ctx context.Context, itemID, color string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if it, ok := m.items[itemID]; ok {
		return it.colors[color], nil
	}
	return 0, nil
}

func (m *MemoryStockStore) SetColorStock(ctx context.Context, itemID, color string, quantity int) error {
	return m.mutate(itemID, func(it *memoryItem) bool {
		if quantity <= 0 {
			delete(it.colors, color)
		} else {
			it.colors[color] = quantity
		}
		return true
	})
}

func (m *MemoryStockStore) DecrementColorStock(ctx context.Context, itemID, color string, quantity int) (bool, error) {
	var applied bool
	err := m.mutate(itemID, func(it *memoryItem) bool {
		applied = takeFrom(it.colors, color, quantity)
		return applied
	})
	return applied, err
}

func (m *MemoryStockStore) IncrementColorStock(ctx context.Context, itemID, color string, quantity int) error {
	return m.mutate(itemID, func(it *memoryItem) bool {
		it.colors[color] += quantity
		if it.colors[color] <= 0 {
			delete(it.colors, color)
		}
		return true
	})
}

func (m *MemoryStockStore) GetTotalStock(ctx context.Context, itemID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if it, ok := m.items[itemID]; ok {
		return it.total, nil
	}
	return 0, nil
}

func (m *MemoryStockStore) DecrementTotalStock(ctx context.Context, itemID string, quantity int) (bool, error) {
	var applied bool
	err := m.mutateFlat(itemID, func(it *memoryItem) bool {
		if it.total < quantity {
			return false
		}
		it.total -= quantity
		applied = true
		return true
	})
	return applied, err
}

func (m *MemoryStockStore) IncrementTotalStock(ctx context.Context, itemID string, quantity int) error {
	return m.mutateFlat(itemID, func(it *memoryItem) bool {
		it.total += quantity
		return true
	})
}

func (m *MemoryStockStore) SaveAggregation(ctx context.Context, itemID string, view domain.AggregationView, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[itemID]
	if !ok {
		return domain.ErrItemNotFound
	}
	if it.version != version {
		return domain.ErrVersionConflict
	}
	it.aggregation = cloneView(view)
	it.total = view.GrandTotal
	return nil
}

// mutate applies fn under the write lock and bumps the version when fn
// reports a change.
func (m *MemoryStockStore) mutate(itemID string, fn func(*memoryItem) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[itemID]
	if !ok {
		return domain.ErrItemNotFound
	}
	if fn(it) {
		it.version++
		it.item.UpdatedAt = time.Now()
	}
	return nil
}

// mutateFlat is mutate for the flat total. The model check shares the lock
// with the write, so a concurrent SetVariantStock cannot slip between them.
func (m *MemoryStockStore) mutateFlat(itemID string, fn func(*memoryItem) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[itemID]
	if !ok {
		return domain.ErrItemNotFound
	}
	if !it.isFlat() {
		return errNotFlat
	}
	if fn(it) {
		it.version++
		it.item.UpdatedAt = time.Now()
	}
	return nil
}

func (it *memoryItem) isFlat() bool {
	if len(it.variants) > 0 || len(it.colors) > 0 {
		return false
	}
	return it.aggregation.Model == "" || it.aggregation.Model == domain.StockModelFlat
}

func takeFrom[K comparable](stock map[K]int, key K, quantity int) bool {
	current := stock[key]
	if current < quantity {
		return false
	}
	if current == quantity {
		delete(stock, key)
	} else {
		stock[key] = current - quantity
	}
	return true
}

func cloneView(v domain.AggregationView) domain.AggregationView {
	out := domain.AggregationView{
		Model:       v.Model,
		ColorTotals: make(map[string]int, len(v.ColorTotals)),
		SizeTotals:  make(map[domain.Size]int, len(v.SizeTotals)),
		GrandTotal:  v.GrandTotal,
	}
	for k, n := range v.ColorTotals {
		out.ColorTotals[k] = n
	}
	for k, n := range v.SizeTotals {
		out.SizeTotals[k] = n
	}
	return out
}
