// Package storagetest holds the behavior every port.StockStore must share.
// Each backend runs StockStoreSuite with its own constructor.
package storagetest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/rl1809/fitfast/internal/adapter/storage"
	"github.com/rl1809/fitfast/internal/core/domain"
	"github.com/rl1809/fitfast/internal/port"
)

type StockStoreSuite struct {
	suite.Suite

	// NewStore is called before every test.
	NewStore func() port.StockStore

	store port.StockStore
	ctx   context.Context
}

func (s *StockStoreSuite) SetupTest() {
	s.store = s.NewStore()
	s.ctx = context.Background()
}

func (s *StockStoreSuite) newItem() string {
	id := "item-" + uuid.NewString()
	s.Require().NoError(s.store.CreateItem(s.ctx, domain.Item{
		ID:          id,
		Name:        "Linen Shirt",
		PriceCents:  4900,
		Description: "Relaxed fit",
		GarmentType: domain.GarmentTop,
	}))
	return id
}

func (s *StockStoreSuite) key(color string, size domain.Size) domain.VariantKey {
	return domain.VariantKey{Color: color, Size: size}
}

func (s *StockStoreSuite) TestCreateItem() {
	id := s.newItem()

	item, err := s.store.GetItem(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("Linen Shirt", item.Name)
	s.Equal(int64(4900), item.PriceCents)
	s.Equal(domain.GarmentTop, item.GarmentType)

	err = s.store.CreateItem(s.ctx, domain.Item{ID: id, Name: "again"})
	s.ErrorIs(err, storage.ErrItemExists)

	snap, err := s.store.Snapshot(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(domain.StockModelFlat, snap.Model())
	s.Equal(domain.StockModelFlat, snap.Aggregation.Model)
	s.Zero(snap.Total)
	s.Empty(snap.Variants)
}

func (s *StockStoreSuite) TestUnknownItem() {
	missing := "missing-" + uuid.NewString()
	k := s.key("red", domain.SizeM)

	_, err := s.store.GetItem(s.ctx, missing)
	s.ErrorIs(err, domain.ErrItemNotFound)
	_, err = s.store.Snapshot(s.ctx, missing)
	s.ErrorIs(err, domain.ErrItemNotFound)

	n, err := s.store.GetVariantStock(s.ctx, missing, k)
	s.NoError(err)
	s.Zero(n)

	s.ErrorIs(s.store.SetVariantStock(s.ctx, missing, k, 3), domain.ErrItemNotFound)
	s.ErrorIs(s.store.IncrementVariantStock(s.ctx, missing, k, 3), domain.ErrItemNotFound)
	_, err = s.store.DecrementVariantStock(s.ctx, missing, k, 1)
	s.ErrorIs(err, domain.ErrItemNotFound)
	_, err = s.store.DecrementTotalStock(s.ctx, missing, 1)
	s.ErrorIs(err, domain.ErrItemNotFound)
	s.ErrorIs(s.store.SaveAggregation(s.ctx, missing, domain.AggregateFlat(0), 0), domain.ErrItemNotFound)
}

func (s *StockStoreSuite) TestVariantSetAndGet() {
	id := s.newItem()
	k := s.key("blue", domain.SizeM)

	s.Require().NoError(s.store.SetVariantStock(s.ctx, id, k, 5))
	n, err := s.store.GetVariantStock(s.ctx, id, k)
	s.Require().NoError(err)
	s.Equal(5, n)

	s.Require().NoError(s.store.SetVariantStock(s.ctx, id, k, 0))
	n, err = s.store.GetVariantStock(s.ctx, id, k)
	s.Require().NoError(err)
	s.Zero(n)

	snap, err := s.store.Snapshot(s.ctx, id)
	s.Require().NoError(err)
	s.NotContains(snap.Variants, k)
}

func (s *StockStoreSuite) TestVariantDecrement() {
	id := s.newItem()
	k := s.key("red", domain.SizeM)
	s.Require().NoError(s.store.SetVariantStock(s.ctx, id, k, 3))

	ok, err := s.store.DecrementVariantStock(s.ctx, id, k, 2)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.DecrementVariantStock(s.ctx, id, k, 2)
	s.Require().NoError(err)
	s.False(ok)

	n, _ := s.store.GetVariantStock(s.ctx, id, k)
	s.Equal(1, n)

	ok, err = s.store.DecrementVariantStock(s.ctx, id, k, 1)
	s.Require().NoError(err)
	s.True(ok)

	snap, err := s.store.Snapshot(s.ctx, id)
	s.Require().NoError(err)
	s.NotContains(snap.Variants, k, "variant at zero must be removed")
}

func (s *StockStoreSuite) TestVariantDecrement_Absent() {
	id := s.newItem()

	ok, err := s.store.DecrementVariantStock(s.ctx, id, s.key("green", domain.SizeXS), 1)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *StockStoreSuite) TestVariantIncrement() {
	id := s.newItem()
	k := s.key("black", domain.SizeXXL)

	s.Require().NoError(s.store.IncrementVariantStock(s.ctx, id, k, 4))
	s.Require().NoError(s.store.IncrementVariantStock(s.ctx, id, k, 2))

	n, err := s.store.GetVariantStock(s.ctx, id, k)
	s.Require().NoError(err)
	s.Equal(6, n)
}

func (s *StockStoreSuite) TestVariantDecrement_Concurrent() {
	id := s.newItem()
	k := s.key("blue", domain.SizeL)

	initialStock := 20
	totalRequests := 50
	s.Require().NoError(s.store.SetVariantStock(s.ctx, id, k, initialStock))

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for range totalRequests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.store.DecrementVariantStock(s.ctx, id, k, 1)
			if err != nil {
				s.T().Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(initialStock), successCount.Load())
	n, err := s.store.GetVariantStock(s.ctx, id, k)
	s.Require().NoError(err)
	s.Zero(n)
}

// Colors are compared byte for byte: "café" and "cafe" are two variants.
func (s *StockStoreSuite) TestColorsAreExactMatch() {
	id := s.newItem()
	s.Require().NoError(s.store.SetVariantStock(s.ctx, id, s.key("café", domain.SizeM), 2))
	s.Require().NoError(s.store.SetVariantStock(s.ctx, id, s.key("cafe", domain.SizeM), 5))
	s.Require().NoError(s.store.SetColorStock(s.ctx, id, "crème", 1))
	s.Require().NoError(s.store.SetColorStock(s.ctx, id, "creme", 4))

	snap, err := s.store.Snapshot(s.ctx, id)
	s.Require().NoError(err)
	s.Len(snap.Variants, 2)
	s.Equal(2, snap.Variants[s.key("café", domain.SizeM)])
	s.Equal(5, snap.Variants[s.key("cafe", domain.SizeM)])
	s.Equal(map[string]int{"crème": 1, "creme": 4}, snap.ColorStock)

	view := snap.Recompute()
	s.Require().NoError(s.store.SaveAggregation(s.ctx, id, view, snap.Version))
	snap, err = s.store.Snapshot(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(map[string]int{"café": 2, "cafe": 5}, snap.Aggregation.ColorTotals)
}

func (s *StockStoreSuite) TestColorStock() {
	id := s.newItem()

	s.Require().NoError(s.store.SetColorStock(s.ctx, id, "navy", 2))
	s.Require().NoError(s.store.IncrementColorStock(s.ctx, id, "navy", 1))

	ok, err := s.store.DecrementColorStock(s.ctx, id, "navy", 4)
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.store.DecrementColorStock(s.ctx, id, "navy", 3)
	s.Require().NoError(err)
	s.True(ok)

	snap, err := s.store.Snapshot(s.ctx, id)
	s.Require().NoError(err)
	s.NotContains(snap.ColorStock, "navy")

	s.Require().NoError(s.store.SetColorStock(s.ctx, id, "white", 7))
	n, err := s.store.GetColorStock(s.ctx, id, "white")
	s.Require().NoError(err)
	s.Equal(7, n)
}

func (s *StockStoreSuite) TestTotalStock() {
	id := s.newItem()

	s.Require().NoError(s.store.IncrementTotalStock(s.ctx, id, 5))

	ok, err := s.store.DecrementTotalStock(s.ctx, id, 6)
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.store.DecrementTotalStock(s.ctx, id, 5)
	s.Require().NoError(err)
	s.True(ok)

	n, err := s.store.GetTotalStock(s.ctx, id)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *StockStoreSuite) TestTotalStock_RejectsVariantItem() {
	id := s.newItem()
	k := s.key("red", domain.SizeM)
	s.Require().NoError(s.store.SetVariantStock(s.ctx, id, k, 1))

	for i := 0; i < 5; i++ {
		ok, err := s.store.DecrementTotalStock(s.ctx, id, 1)
		s.ErrorIs(err, domain.ErrInvalidVariantKey)
		s.False(ok)
	}
	s.ErrorIs(s.store.IncrementTotalStock(s.ctx, id, 1), domain.ErrInvalidVariantKey)

	n, err := s.store.GetVariantStock(s.ctx, id, k)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *StockStoreSuite) TestTotalStock_RejectsLegacyItem() {
	id := s.newItem()
	s.Require().NoError(s.store.SetColorStock(s.ctx, id, "white", 2))

	ok, err := s.store.DecrementTotalStock(s.ctx, id, 1)
	s.ErrorIs(err, domain.ErrInvalidVariantKey)
	s.False(ok)

	n, err := s.store.GetColorStock(s.ctx, id, "white")
	s.Require().NoError(err)
	s.Equal(2, n)
}

// A variant item keeps its model after selling out, so the leftover total
// mirror is not sellable either.
func (s *StockStoreSuite) TestTotalStock_RejectsSoldOutVariantItem() {
	id := s.newItem()
	k := s.key("red", domain.SizeM)
	s.Require().NoError(s.store.SetVariantStock(s.ctx, id, k, 1))

	snap, err := s.store.Snapshot(s.ctx, id)
	s.Require().NoError(err)
	s.Require().NoError(s.store.SaveAggregation(s.ctx, id, snap.Recompute(), snap.Version))

	ok, err := s.store.DecrementVariantStock(s.ctx, id, k, 1)
	s.Require().NoError(err)
	s.Require().True(ok)

	ok, err = s.store.DecrementTotalStock(s.ctx, id, 1)
	s.ErrorIs(err, domain.ErrInvalidVariantKey)
	s.False(ok)
}

func (s *StockStoreSuite) TestMutationsBumpVersion() {
	id := s.newItem()
	k := s.key("red", domain.SizeS)

	version := func() int64 {
		snap, err := s.store.Snapshot(s.ctx, id)
		s.Require().NoError(err)
		return snap.Version
	}

	v0 := version()
	s.Require().NoError(s.store.SetVariantStock(s.ctx, id, k, 2))
	v1 := version()
	s.Greater(v1, v0)

	ok, err := s.store.DecrementVariantStock(s.ctx, id, k, 5)
	s.Require().NoError(err)
	s.False(ok)
	s.Equal(v1, version(), "failed decrement must not bump the version")

	s.Require().NoError(s.store.IncrementColorStock(s.ctx, id, "white", 1))
	s.Greater(version(), v1)
}

func (s *StockStoreSuite) TestSaveAggregation() {
	id := s.newItem()
	s.Require().NoError(s.store.SetVariantStock(s.ctx, id, s.key("red", domain.SizeM), 2))
	s.Require().NoError(s.store.SetVariantStock(s.ctx, id, s.key("red", domain.SizeL), 1))
	s.Require().NoError(s.store.SetVariantStock(s.ctx, id, s.key("blue", domain.SizeM), 4))

	snap, err := s.store.Snapshot(s.ctx, id)
	s.Require().NoError(err)
	view := snap.Recompute()

	s.Require().NoError(s.store.SaveAggregation(s.ctx, id, view, snap.Version))

	snap, err = s.store.Snapshot(s.ctx, id)
	s.Require().NoError(err)
	s.True(view.Equal(snap.Aggregation), "stored %+v, want %+v", snap.Aggregation, view)
	s.Equal(7, snap.Total)
	s.Equal(map[string]int{"red": 3, "blue": 4}, snap.Aggregation.ColorTotals)
	s.Equal(map[domain.Size]int{domain.SizeM: 6, domain.SizeL: 1}, snap.Aggregation.SizeTotals)
}

func (s *StockStoreSuite) TestSaveAggregation_StaleVersion() {
	id := s.newItem()
	k := s.key("red", domain.SizeM)
	s.Require().NoError(s.store.SetVariantStock(s.ctx, id, k, 2))

	stale, err := s.store.Snapshot(s.ctx, id)
	s.Require().NoError(err)

	s.Require().NoError(s.store.IncrementVariantStock(s.ctx, id, k, 1))

	err = s.store.SaveAggregation(s.ctx, id, stale.Recompute(), stale.Version)
	s.ErrorIs(err, domain.ErrVersionConflict)
}
