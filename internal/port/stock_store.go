package port

import (
	"context"

	"github.com/rl1809/fitfast/internal/core/domain"
)

// Every mutation below bumps the item's stock version in the same atomic step
// and returns domain.ErrItemNotFound when the item does not exist.

type ItemStore interface {
	CreateItem(ctx context.Context, item domain.Item) error
	GetItem(ctx context.Context, itemID string) (*domain.Item, error)

	// Snapshot returns a consistent read of variants, legacy colors, total,
	// the stored aggregation and the stock version.
	Snapshot(ctx context.Context, itemID string) (domain.StockSnapshot, error)
}

type VariantStore interface {
	GetVariantStock(ctx context.Context, itemID string, key domain.VariantKey) (int, error)

	// SetVariantStock overwrites the entry; quantity <= 0 deletes it.
	SetVariantStock(ctx context.Context, itemID string, key domain.VariantKey, quantity int) error

	// DecrementVariantStock subtracts quantity only if current >= quantity,
	// deleting the entry when it reaches zero. Returns false if not applied.
	DecrementVariantStock(ctx context.Context, itemID string, key domain.VariantKey, quantity int) (bool, error)

	IncrementVariantStock(ctx context.Context, itemID string, key domain.VariantKey, quantity int) error
}

// ColorStore holds color-only stock for items created before variants existed.
type ColorStore interface {
	GetColorStock(ctx context.Context, itemID, color string) (int, error)
	SetColorStock(ctx context.Context, itemID, color string, quantity int) error
	DecrementColorStock(ctx context.Context, itemID, color string, quantity int) (bool, error)
	IncrementColorStock(ctx context.Context, itemID, color string, quantity int) error
}

// TotalStore holds the flat stock quantity. For variant and legacy items the
// total is written by SaveAggregation only.
type TotalStore interface {
	GetTotalStock(ctx context.Context, itemID string) (int, error)
	DecrementTotalStock(ctx context.Context, itemID string, quantity int) (bool, error)
	IncrementTotalStock(ctx context.Context, itemID string, quantity int) error
}

type AggregationStore interface {
	// SaveAggregation persists the view (and its grand total as the item's
	// total) only if the stock version still equals version, otherwise it
	// returns domain.ErrVersionConflict.
	SaveAggregation(ctx context.Context, itemID string, view domain.AggregationView, version int64) error
}

type StockStore interface {
	ItemStore
	VariantStore
	ColorStore
	TotalStore
	AggregationStore
}
