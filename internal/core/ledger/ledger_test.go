package ledger

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/rl1809/fitfast/internal/adapter/storage"
	"github.com/rl1809/fitfast/internal/core/domain"
	"github.com/rl1809/fitfast/internal/platform/metrics"
	"github.com/rl1809/fitfast/internal/port"
)

const testItemID = "linen-shirt"

type LedgerSuite struct {
	suite.Suite
	store   *storage.MemoryStockStore
	metrics *metrics.Metrics
	ledger  *Ledger
	ctx     context.Context
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = storage.NewMemoryStockStore()
	s.Require().NoError(s.store.CreateItem(s.ctx, domain.Item{ID: testItemID, Name: "Linen Shirt"}))
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.ledger = New(s.store, testItemID, WithMetrics(s.metrics))
}

func (s *LedgerSuite) stock(color, size string) int {
	n, err := s.ledger.GetStock(s.ctx, color, size)
	s.Require().NoError(err)
	return n
}

func (s *LedgerSuite) requireConsistent() {
	snap, err := s.store.Snapshot(s.ctx, testItemID)
	s.Require().NoError(err)

	sum := 0
	for _, n := range snap.Variants {
		s.Positive(n)
		sum += n
	}
	view := snap.Aggregation
	s.Require().NoError(view.Verify())
	if len(snap.Variants) > 0 {
		s.Equal(sum, view.GrandTotal)
	}
	s.True(view.Equal(snap.Recompute()), "stored %+v, recomputed %+v", view, snap.Recompute())
	s.NoError(s.ledger.CheckIntegrity(s.ctx))
}

func (s *LedgerSuite) TestScenario_RedMedium() {
	s.Require().NoError(s.ledger.SetStock(s.ctx, "Red", "M", 3))

	ok, err := s.ledger.TryDecrement(s.ctx, "Red", "M", 2)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(1, s.stock("Red", "M"))

	ok, err = s.ledger.TryDecrement(s.ctx, "Red", "M", 2)
	s.Require().NoError(err)
	s.False(ok, "insufficient stock")
	s.Equal(1, s.stock("Red", "M"))

	s.Require().NoError(s.ledger.Increment(s.ctx, "Red", "M", 5))
	s.Equal(6, s.stock("Red", "M"))

	s.Require().NoError(s.ledger.SetStock(s.ctx, "Red", "M", 0))
	s.Zero(s.stock("Red", "M"))

	variants, err := s.ledger.Variants(s.ctx)
	s.Require().NoError(err)
	s.Empty(variants)
	s.requireConsistent()
}

func (s *LedgerSuite) TestSetStock_RoundTrip() {
	for _, q := range []int{1, 7, 250} {
		s.Require().NoError(s.ledger.SetStock(s.ctx, "white", "XL", q))
		s.Equal(q, s.stock("white", "XL"))
	}

	s.Require().NoError(s.ledger.SetStock(s.ctx, "white", "XL", -4))
	s.Zero(s.stock("white", "XL"))

	snap, err := s.store.Snapshot(s.ctx, testItemID)
	s.Require().NoError(err)
	s.Empty(snap.Variants, "non-positive set must remove the entry")
}

func (s *LedgerSuite) TestCaseInsensitiveKeys() {
	s.Require().NoError(s.ledger.SetStock(s.ctx, "Blue", "m", 5))

	s.Equal(5, s.stock("blue", "M"))
	s.Equal(5, s.stock(" BLUE ", "m"))

	ok, err := s.ledger.TryDecrement(s.ctx, "bLuE", "M", 5)
	s.Require().NoError(err)
	s.True(ok)
	s.Zero(s.stock("Blue", "m"))
}

func (s *LedgerSuite) TestZeroQuantityIsNoop() {
	s.Require().NoError(s.ledger.SetStock(s.ctx, "red", "S", 2))
	before, err := s.store.Snapshot(s.ctx, testItemID)
	s.Require().NoError(err)

	s.Require().NoError(s.ledger.Increment(s.ctx, "red", "S", 0))
	ok, err := s.ledger.TryDecrement(s.ctx, "red", "S", 0)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.ledger.TryDecrement(s.ctx, "green", "S", 0)
	s.Require().NoError(err)
	s.True(ok, "zero decrement succeeds even for an absent variant")

	after, err := s.store.Snapshot(s.ctx, testItemID)
	s.Require().NoError(err)
	s.Equal(before.Version, after.Version)
	s.Equal(before.Variants, after.Variants)
}

func (s *LedgerSuite) TestInvalidInput() {
	_, err := s.ledger.GetStock(s.ctx, "", "M")
	s.ErrorIs(err, domain.ErrInvalidVariantKey)

	_, err = s.ledger.TryDecrement(s.ctx, "red", "XXXL", 1)
	s.ErrorIs(err, domain.ErrInvalidVariantKey)

	s.ErrorIs(s.ledger.SetStock(s.ctx, "red|blue", "M", 1), domain.ErrInvalidVariantKey)

	_, err = s.ledger.TryDecrement(s.ctx, "red", "M", -1)
	s.ErrorIs(err, domain.ErrInvalidQuantity)

	s.ErrorIs(s.ledger.Increment(s.ctx, "red", "M", -1), domain.ErrInvalidQuantity)

	_, err = s.ledger.CanFulfill(s.ctx, "red", "M", -1)
	s.ErrorIs(err, domain.ErrInvalidQuantity)
}

func (s *LedgerSuite) TestCanFulfill() {
	s.Require().NoError(s.ledger.SetStock(s.ctx, "olive", "L", 2))

	ok, err := s.ledger.CanFulfill(s.ctx, "Olive", "l", 2)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.ledger.CanFulfill(s.ctx, "olive", "L", 3)
	s.Require().NoError(err)
	s.False(ok)

	s.Equal(2, s.stock("olive", "L"), "CanFulfill must not reserve")
}

func (s *LedgerSuite) TestAggregation_Rollups() {
	s.Require().NoError(s.ledger.SetStock(s.ctx, "red", "M", 2))
	s.Require().NoError(s.ledger.SetStock(s.ctx, "red", "L", 3))
	s.Require().NoError(s.ledger.SetStock(s.ctx, "blue", "M", 4))

	view, err := s.ledger.Aggregation(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.StockModelVariant, view.Model)
	s.Equal(map[string]int{"red": 5, "blue": 4}, view.ColorTotals)
	s.Equal(map[domain.Size]int{domain.SizeM: 6, domain.SizeL: 3}, view.SizeTotals)
	s.Equal(9, view.GrandTotal)

	total, err := s.ledger.GetTotal(s.ctx)
	s.Require().NoError(err)
	s.Equal(9, total, "grand total is mirrored into the item total")
}

func (s *LedgerSuite) TestAggregation_ConsistentAfterRandomOps() {
	colors := []string{"Red", "blue", "GREEN"}
	rng := rand.New(rand.NewSource(42))

	for range 300 {
		color := colors[rng.Intn(len(colors))]
		size := string(domain.Sizes[rng.Intn(len(domain.Sizes))])
		q := rng.Intn(6)

		switch rng.Intn(3) {
		case 0:
			s.Require().NoError(s.ledger.SetStock(s.ctx, color, size, q-1))
		case 1:
			_, err := s.ledger.TryDecrement(s.ctx, color, size, q)
			s.Require().NoError(err)
		default:
			s.Require().NoError(s.ledger.Increment(s.ctx, color, size, q))
		}
	}
	s.requireConsistent()
}

func (s *LedgerSuite) TestTryDecrement_NoOversell() {
	initialStock := 20
	totalRequests := 50
	s.Require().NoError(s.ledger.SetStock(s.ctx, "black", "S", initialStock))

	var successCount, failCount atomic.Int32
	var wg sync.WaitGroup
	for range totalRequests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// every buyer loads its own ledger, as separate requests would
			l := New(s.store, testItemID)
			ok, err := l.TryDecrement(s.ctx, "black", "S", 1)
			if err != nil {
				s.T().Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(initialStock), successCount.Load())
	s.Equal(int32(totalRequests-initialStock), failCount.Load())
	s.Zero(s.stock("black", "S"))
	s.requireConsistent()
}

func (s *LedgerSuite) TestTryDecrement_LastUnitRace() {
	s.Require().NoError(s.ledger.SetStock(s.ctx, "Blue", "L", 1))

	results := make(chan bool, 2)
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := New(s.store, testItemID).TryDecrement(s.ctx, "Blue", "L", 1)
			s.NoError(err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	s.Equal(1, wins)
	s.Zero(s.stock("blue", "l"))
	s.requireConsistent()
}

func (s *LedgerSuite) TestMetrics() {
	s.Require().NoError(s.ledger.SetStock(s.ctx, "red", "M", 1))
	_, _ = s.ledger.TryDecrement(s.ctx, "red", "M", 1)
	_, _ = s.ledger.TryDecrement(s.ctx, "red", "M", 1)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.StockOperations.WithLabelValues("decrement", outcomeOK)))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.StockOperations.WithLabelValues("decrement", outcomeInsufficient)))
}

func (s *LedgerSuite) TestCheckIntegrity_DetectsDrift() {
	s.Require().NoError(s.ledger.SetStock(s.ctx, "red", "M", 4))

	snap, err := s.store.Snapshot(s.ctx, testItemID)
	s.Require().NoError(err)
	bad := snap.Recompute()
	bad.ColorTotals["red"] = 10
	s.Require().NoError(s.store.SaveAggregation(s.ctx, testItemID, bad, snap.Version))

	err = s.ledger.CheckIntegrity(s.ctx)
	s.ErrorIs(err, domain.ErrAggregationDrift)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.AggregationDrift))

	stored, err := s.ledger.Aggregation(s.ctx)
	s.Require().NoError(err)
	s.Equal(10, stored.ColorTotals["red"], "integrity check must not correct drift")

	view, err := s.ledger.RecomputeAggregation(s.ctx)
	s.Require().NoError(err)
	s.Equal(4, view.ColorTotals["red"])
	s.NoError(s.ledger.CheckIntegrity(s.ctx))
}

func (s *LedgerSuite) TestCheckIntegrity_DetectsStaleTotal() {
	s.Require().NoError(s.ledger.SetStock(s.ctx, "red", "M", 4))

	snap, err := s.store.Snapshot(s.ctx, testItemID)
	s.Require().NoError(err)
	stale := domain.AggregateVariants(domain.VariantTable{{Color: "red", Size: domain.SizeM}: 2})
	s.Require().NoError(s.store.SaveAggregation(s.ctx, testItemID, stale, snap.Version))

	s.ErrorIs(s.ledger.CheckIntegrity(s.ctx), domain.ErrAggregationDrift)
}

func (s *LedgerSuite) TestUnknownItem() {
	l := New(s.store, "missing")

	n, err := l.GetStock(s.ctx, "red", "M")
	s.NoError(err)
	s.Zero(n)

	_, err = l.TryDecrement(s.ctx, "red", "M", 1)
	s.ErrorIs(err, domain.ErrItemNotFound)
	s.ErrorIs(l.SetStock(s.ctx, "red", "M", 1), domain.ErrItemNotFound)
}

// conflictingStore loses every aggregation write to a concurrent mutation.
type conflictingStore struct {
	port.StockStore
	saves atomic.Int32
}

func (c *conflictingStore) SaveAggregation(ctx context.Context, itemID string, view domain.AggregationView, version int64) error {
	c.saves.Add(1)
	return domain.ErrVersionConflict
}

func (s *LedgerSuite) TestRefresh_DropsSupersededWrite() {
	store := &conflictingStore{StockStore: s.store}
	l := New(store, testItemID, WithMetrics(s.metrics))

	s.Require().NoError(l.SetStock(s.ctx, "red", "M", 2))
	ok, err := l.TryDecrement(s.ctx, "red", "M", 1)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(2.0, testutil.ToFloat64(s.metrics.AggregationConflicts))

	_, err = l.RecomputeAggregation(s.ctx)
	s.ErrorIs(err, domain.ErrVersionConflict, "explicit recompute gives up after bounded retries")
	s.Equal(int32(2+5), store.saves.Load())
}

// failingStore fails every decrement.
type failingStore struct {
	port.StockStore
}

var errStoreDown = errors.New("store unavailable")

func (f failingStore) DecrementVariantStock(ctx context.Context, itemID string, key domain.VariantKey, quantity int) (bool, error) {
	return false, errStoreDown
}

func (s *LedgerSuite) TestTryDecrement_PropagatesStoreError() {
	l := New(failingStore{StockStore: s.store}, testItemID)

	ok, err := l.TryDecrement(s.ctx, "red", "M", 1)
	s.False(ok)
	s.ErrorIs(err, errStoreDown)
}

// brokenSaveStore takes stock normally but cannot store the roll-ups.
type brokenSaveStore struct {
	port.StockStore
}

func (b brokenSaveStore) SaveAggregation(ctx context.Context, itemID string, view domain.AggregationView, version int64) error {
	return errStoreDown
}

func (s *LedgerSuite) TestTryDecrement_ReportsTakenStockWhenRefreshFails() {
	s.Require().NoError(s.ledger.SetStock(s.ctx, "red", "M", 3))
	l := New(brokenSaveStore{StockStore: s.store}, testItemID)

	ok, err := l.TryDecrement(s.ctx, "red", "M", 2)
	s.True(ok, "the decrement landed and must be released by the caller")
	s.ErrorIs(err, errStoreDown)
	s.Equal(1, s.stock("red", "M"))

	s.ErrorIs(l.Release(s.ctx, domain.StockModelVariant, "red", "M", 2), errStoreDown)
	s.Equal(3, s.stock("red", "M"))

	_, err = s.ledger.RecomputeAggregation(s.ctx)
	s.Require().NoError(err)
	s.requireConsistent()
}
