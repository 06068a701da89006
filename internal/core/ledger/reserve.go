package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/rl1809/fitfast/internal/core/domain"
)

// Reserve takes stock for an order line along whichever path the item
// supports and reports the path used, so Release can give it back the same
// way.
//
//   - color and size: the variant table. If the variant is short and the item
//     has no variant data but has color-only data, the legacy map is tried.
//   - color only: the legacy map.
//   - neither: the flat total. The store rejects this for items that track
//     variants or colors.
func (l *Ledger) Reserve(ctx context.Context, color, size string, quantity int) (domain.StockModel, bool, error) {
	color, size = strings.TrimSpace(color), strings.TrimSpace(size)

	switch {
	case color == "" && size == "":
		ok, err := l.TryDecrementTotal(ctx, quantity)
		if err != nil {
			return "", false, err
		}
		return domain.StockModelFlat, ok, nil

	case size == "":
		ok, err := l.TryDecrementLegacy(ctx, color, quantity)
		return domain.StockModelLegacy, ok, err
	}

	ok, err := l.TryDecrement(ctx, color, size, quantity)
	if ok || err != nil {
		return domain.StockModelVariant, ok, err
	}

	snap, err := l.snapshot(ctx)
	if err != nil {
		return "", false, err
	}
	if snap.Model() != domain.StockModelLegacy {
		return domain.StockModelVariant, false, nil
	}
	ok, err = l.TryDecrementLegacy(ctx, color, quantity)
	return domain.StockModelLegacy, ok, err
}

// Release returns stock taken by Reserve.
func (l *Ledger) Release(ctx context.Context, model domain.StockModel, color, size string, quantity int) error {
	switch model {
	case domain.StockModelVariant:
		return l.Increment(ctx, color, size, quantity)
	case domain.StockModelLegacy:
		return l.IncrementLegacy(ctx, color, quantity)
	case domain.StockModelFlat:
		return l.IncrementTotal(ctx, quantity)
	default:
		return fmt.Errorf("release: unknown stock model %q", model)
	}
}
