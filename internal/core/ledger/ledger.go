// Package ledger implements the per-item variant stock ledger: atomic
// conditional mutations of (color, size) stock, with the legacy color-only and
// flat-total representations as fallbacks, and roll-up refresh after every
// mutation.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/fitfast/internal/core/domain"
	"github.com/rl1809/fitfast/internal/platform/metrics"
	"github.com/rl1809/fitfast/internal/port"
)

const (
	outcomeOK           = "ok"
	outcomeInsufficient = "insufficient"
	outcomeError        = "error"
)

type Ledger struct {
	store   port.StockStore
	itemID  string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type Option func(*Ledger)

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// New returns the ledger of one item. It holds no stock state of its own, so
// any number of ledgers for the same item may be used concurrently.
func New(store port.StockStore, itemID string, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		itemID: itemID,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("item_id", itemID))
	return l
}

func (l *Ledger) ItemID() string {
	return l.itemID
}

// GetStock returns the stock of a variant, or 0 if it has none.
func (l *Ledger) GetStock(ctx context.Context, color, size string) (int, error) {
	key, err := domain.NewVariantKey(color, size)
	if err != nil {
		return 0, err
	}
	n, err := l.store.GetVariantStock(ctx, l.itemID, key)
	if err != nil {
		return 0, fmt.Errorf("get variant %s: %w", key, err)
	}
	return n, nil
}

// CanFulfill reports whether a variant currently holds quantity units. It
// reserves nothing; TryDecrement is the authoritative check.
func (l *Ledger) CanFulfill(ctx context.Context, color, size string, quantity int) (bool, error) {
	if quantity < 0 {
		return false, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, quantity)
	}
	n, err := l.GetStock(ctx, color, size)
	if err != nil {
		return false, err
	}
	return n >= quantity, nil
}

// SetStock overwrites a variant's stock. A quantity of zero or below removes
// the variant.
func (l *Ledger) SetStock(ctx context.Context, color, size string, quantity int) error {
	key, err := domain.NewVariantKey(color, size)
	if err != nil {
		return err
	}
	if err := l.store.SetVariantStock(ctx, l.itemID, key, max(quantity, 0)); err != nil {
		l.metrics.StockOperation("set", outcomeError)
		return fmt.Errorf("set variant %s: %w", key, err)
	}
	l.metrics.StockOperation("set", outcomeOK)
	return l.refresh(ctx)
}

// TryDecrement takes quantity units of a variant if, and only if, that many
// are in stock. The check and the subtraction are one conditional update in
// the store, so concurrent callers can never oversell.
//
// If the decrement applied but the aggregation refresh failed, TryDecrement
// returns true together with the error.
func (l *Ledger) TryDecrement(ctx context.Context, color, size string, quantity int) (bool, error) {
	key, err := domain.NewVariantKey(color, size)
	if err != nil {
		return false, err
	}
	if quantity < 0 {
		return false, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, quantity)
	}
	if quantity == 0 {
		return true, nil
	}

	ok, err := l.store.DecrementVariantStock(ctx, l.itemID, key, quantity)
	if err != nil {
		l.metrics.StockOperation("decrement", outcomeError)
		return false, fmt.Errorf("decrement variant %s: %w", key, err)
	}
	if !ok {
		l.metrics.StockOperation("decrement", outcomeInsufficient)
		l.logger.Debug("insufficient variant stock",
			zap.String("variant", key.String()), zap.Int("requested", quantity))
		return false, nil
	}
	l.metrics.StockOperation("decrement", outcomeOK)
	return true, l.refresh(ctx)
}

// Increment adds stock to a variant, creating it if absent. Used for returns
// and cancellations.
func (l *Ledger) Increment(ctx context.Context, color, size string, quantity int) error {
	key, err := domain.NewVariantKey(color, size)
	if err != nil {
		return err
	}
	if quantity < 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, quantity)
	}
	if quantity == 0 {
		return nil
	}
	if err := l.store.IncrementVariantStock(ctx, l.itemID, key, quantity); err != nil {
		l.metrics.StockOperation("increment", outcomeError)
		return fmt.Errorf("increment variant %s: %w", key, err)
	}
	l.metrics.StockOperation("increment", outcomeOK)
	return l.refresh(ctx)
}

// Variants lists the in-stock variants of the item.
func (l *Ledger) Variants(ctx context.Context) ([]domain.Variant, error) {
	snap, err := l.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Variants.Variants(), nil
}

func (l *Ledger) snapshot(ctx context.Context) (domain.StockSnapshot, error) {
	snap, err := l.store.Snapshot(ctx, l.itemID)
	if err != nil {
		return domain.StockSnapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}

func isVersionConflict(err error) bool {
	return errors.Is(err, domain.ErrVersionConflict)
}
