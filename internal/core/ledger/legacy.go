package ledger

import (
	"context"
	"fmt"

	"github.com/rl1809/fitfast/internal/core/domain"
)

// Color-only stock, for items created before the size dimension existed.

func (l *Ledger) GetLegacyStock(ctx context.Context, color string) (int, error) {
	c, err := domain.NormalizeColor(color)
	if err != nil {
		return 0, err
	}
	n, err := l.store.GetColorStock(ctx, l.itemID, c)
	if err != nil {
		return 0, fmt.Errorf("get color %s: %w", c, err)
	}
	return n, nil
}

func (l *Ledger) SetLegacyStock(ctx context.Context, color string, quantity int) error {
	c, err := domain.NormalizeColor(color)
	if err != nil {
		return err
	}
	if err := l.store.SetColorStock(ctx, l.itemID, c, max(quantity, 0)); err != nil {
		l.metrics.StockOperation("set_legacy", outcomeError)
		return fmt.Errorf("set color %s: %w", c, err)
	}
	l.metrics.StockOperation("set_legacy", outcomeOK)
	return l.refresh(ctx)
}

// TryDecrementLegacy is TryDecrement for color-only stock.
func (l *Ledger) TryDecrementLegacy(ctx context.Context, color string, quantity int) (bool, error) {
	c, err := domain.NormalizeColor(color)
	if err != nil {
		return false, err
	}
	if quantity < 0 {
		return false, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, quantity)
	}
	if quantity == 0 {
		return true, nil
	}

	ok, err := l.store.DecrementColorStock(ctx, l.itemID, c, quantity)
	if err != nil {
		l.metrics.StockOperation("decrement_legacy", outcomeError)
		return false, fmt.Errorf("decrement color %s: %w", c, err)
	}
	if !ok {
		l.metrics.StockOperation("decrement_legacy", outcomeInsufficient)
		return false, nil
	}
	l.metrics.StockOperation("decrement_legacy", outcomeOK)
	return true, l.refresh(ctx)
}

func (l *Ledger) IncrementLegacy(ctx context.Context, color string, quantity int) error {
	c, err := domain.NormalizeColor(color)
	if err != nil {
		return err
	}
	if quantity < 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, quantity)
	}
	if quantity == 0 {
		return nil
	}
	if err := l.store.IncrementColorStock(ctx, l.itemID, c, quantity); err != nil {
		l.metrics.StockOperation("increment_legacy", outcomeError)
		return fmt.Errorf("increment color %s: %w", c, err)
	}
	l.metrics.StockOperation("increment_legacy", outcomeOK)
	return l.refresh(ctx)
}

// Flat stock, for items with neither variants nor colors.

func (l *Ledger) GetTotal(ctx context.Context) (int, error) {
	n, err := l.store.GetTotalStock(ctx, l.itemID)
	if err != nil {
		return 0, fmt.Errorf("get total: %w", err)
	}
	return n, nil
}

func (l *Ledger) TryDecrementTotal(ctx context.Context, quantity int) (bool, error) {
	if quantity < 0 {
		return false, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, quantity)
	}
	if quantity == 0 {
		return true, nil
	}

	ok, err := l.store.DecrementTotalStock(ctx, l.itemID, quantity)
	if err != nil {
		l.metrics.StockOperation("decrement_total", outcomeError)
		return false, fmt.Errorf("decrement total: %w", err)
	}
	if !ok {
		l.metrics.StockOperation("decrement_total", outcomeInsufficient)
		return false, nil
	}
	l.metrics.StockOperation("decrement_total", outcomeOK)
	return true, l.refresh(ctx)
}

func (l *Ledger) IncrementTotal(ctx context.Context, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, quantity)
	}
	if quantity == 0 {
		return nil
	}
	if err := l.store.IncrementTotalStock(ctx, l.itemID, quantity); err != nil {
		l.metrics.StockOperation("increment_total", outcomeError)
		return fmt.Errorf("increment total: %w", err)
	}
	l.metrics.StockOperation("increment_total", outcomeOK)
	return l.refresh(ctx)
}
