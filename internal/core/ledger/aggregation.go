package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/fitfast/internal/core/domain"
)

// refresh recomputes the roll-ups from a consistent snapshot and saves them
// under the snapshot's version. A version conflict means a newer mutation
// landed; that mutation runs its own refresh, so this one is dropped.
func (l *Ledger) refresh(ctx context.Context) error {
	_, err := l.recompute(ctx)
	if isVersionConflict(err) {
		l.metrics.AggregationConflict()
		l.logger.Debug("aggregation refresh superseded")
		return nil
	}
	return err
}

func (l *Ledger) recompute(ctx context.Context) (domain.AggregationView, error) {
	snap, err := l.snapshot(ctx)
	if err != nil {
		return domain.AggregationView{}, err
	}
	view := snap.Recompute()
	if err := l.store.SaveAggregation(ctx, l.itemID, view, snap.Version); err != nil {
		return domain.AggregationView{}, fmt.Errorf("save aggregation: %w", err)
	}
	return view, nil
}

// RecomputeAggregation rebuilds the per-color, per-size and grand totals from
// the full variant table and persists them. Mutations call it implicitly; it
// is exposed for explicit repair. A concurrent mutation during the rebuild is
// retried a bounded number of times.
func (l *Ledger) RecomputeAggregation(ctx context.Context) (domain.AggregationView, error) {
	const attempts = 5

	var err error
	for range attempts {
		var view domain.AggregationView
		view, err = l.recompute(ctx)
		if err == nil {
			l.metrics.StockOperation("recompute", outcomeOK)
			return view, nil
		}
		if !isVersionConflict(err) {
			break
		}
		l.metrics.AggregationConflict()
	}
	l.metrics.StockOperation("recompute", outcomeError)
	return domain.AggregationView{}, err
}

// Aggregation returns the stored roll-ups without recomputing them.
func (l *Ledger) Aggregation(ctx context.Context) (domain.AggregationView, error) {
	snap, err := l.snapshot(ctx)
	if err != nil {
		return domain.AggregationView{}, err
	}
	return snap.Aggregation, nil
}

// CheckIntegrity compares the stored roll-ups with a fresh recompute. Drift is
// logged and reported as domain.ErrAggregationDrift but never corrected here.
func (l *Ledger) CheckIntegrity(ctx context.Context) error {
	snap, err := l.snapshot(ctx)
	if err != nil {
		return err
	}

	stored := snap.Aggregation
	expected := snap.Recompute()

	if err := stored.Verify(); err != nil {
		l.reportDrift(stored, expected)
		return err
	}
	if !stored.Equal(expected) {
		l.reportDrift(stored, expected)
		return fmt.Errorf("%w: stored grand total %d, variants hold %d",
			domain.ErrAggregationDrift, stored.GrandTotal, expected.GrandTotal)
	}
	return nil
}

func (l *Ledger) reportDrift(stored, expected domain.AggregationView) {
	l.metrics.Drift()
	l.logger.Error("aggregation drift detected",
		zap.String("model", string(expected.Model)),
		zap.Int("stored_grand_total", stored.GrandTotal),
		zap.Int("expected_grand_total", expected.GrandTotal),
		zap.Any("stored_color_totals", stored.ColorTotals),
		zap.Any("expected_color_totals", expected.ColorTotals),
	)
}
