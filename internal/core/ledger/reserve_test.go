package ledger

import (
	"github.com/rl1809/fitfast/internal/core/domain"
)

func (s *LedgerSuite) TestReserve_Variant() {
	s.Require().NoError(s.ledger.SetStock(s.ctx, "red", "M", 2))

	model, ok, err := s.ledger.Reserve(s.ctx, "Red", "m", 2)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(domain.StockModelVariant, model)
	s.Zero(s.stock("red", "M"))

	model, ok, err = s.ledger.Reserve(s.ctx, "red", "M", 1)
	s.Require().NoError(err)
	s.False(ok)
	s.Equal(domain.StockModelVariant, model)

	s.Require().NoError(s.ledger.Release(s.ctx, domain.StockModelVariant, "red", "M", 2))
	s.Equal(2, s.stock("red", "M"))
	s.requireConsistent()
}

func (s *LedgerSuite) TestReserve_FallsBackToLegacy() {
	s.Require().NoError(s.ledger.SetLegacyStock(s.ctx, "Navy", 3))

	model, ok, err := s.ledger.Reserve(s.ctx, "navy", "L", 2)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(domain.StockModelLegacy, model)

	n, err := s.ledger.GetLegacyStock(s.ctx, "NAVY")
	s.Require().NoError(err)
	s.Equal(1, n)

	view, err := s.ledger.Aggregation(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.StockModelLegacy, view.Model)
	s.Equal(map[string]int{"navy": 1}, view.ColorTotals)
	s.Equal(1, view.GrandTotal)

	s.Require().NoError(s.ledger.Release(s.ctx, model, "navy", "L", 2))
	n, _ = s.ledger.GetLegacyStock(s.ctx, "navy")
	s.Equal(3, n)
	s.requireConsistent()
}

func (s *LedgerSuite) TestReserve_NoLegacyFallbackWhenVariantsExist() {
	s.Require().NoError(s.ledger.SetLegacyStock(s.ctx, "navy", 5))
	s.Require().NoError(s.ledger.SetStock(s.ctx, "navy", "S", 1))

	model, ok, err := s.ledger.Reserve(s.ctx, "navy", "L", 1)
	s.Require().NoError(err)
	s.False(ok, "variant-aware item must not draw from legacy colors")
	s.Equal(domain.StockModelVariant, model)

	n, _ := s.ledger.GetLegacyStock(s.ctx, "navy")
	s.Equal(5, n)
}

func (s *LedgerSuite) TestReserve_ColorOnly() {
	s.Require().NoError(s.ledger.SetLegacyStock(s.ctx, "olive", 1))

	model, ok, err := s.ledger.Reserve(s.ctx, "olive", "", 1)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(domain.StockModelLegacy, model)

	_, ok, err = s.ledger.Reserve(s.ctx, "olive", "", 1)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *LedgerSuite) TestReserve_Flat() {
	s.Require().NoError(s.ledger.IncrementTotal(s.ctx, 2))

	model, ok, err := s.ledger.Reserve(s.ctx, "", "", 2)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(domain.StockModelFlat, model)

	_, ok, err = s.ledger.Reserve(s.ctx, "", "", 1)
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.ledger.Release(s.ctx, model, "", "", 1))
	total, err := s.ledger.GetTotal(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, total)
	s.requireConsistent()
}

func (s *LedgerSuite) TestReserve_FlatRejectedForVariantItem() {
	s.Require().NoError(s.ledger.SetStock(s.ctx, "red", "M", 5))

	_, _, err := s.ledger.Reserve(s.ctx, "", "", 1)
	s.ErrorIs(err, domain.ErrInvalidVariantKey)
}

func (s *LedgerSuite) TestTryDecrementTotal_RejectsVariantItem() {
	s.Require().NoError(s.ledger.SetStock(s.ctx, "red", "M", 1))

	for i := 0; i < 5; i++ {
		ok, err := s.ledger.TryDecrementTotal(s.ctx, 1)
		s.ErrorIs(err, domain.ErrInvalidVariantKey)
		s.False(ok)
	}
	s.ErrorIs(s.ledger.IncrementTotal(s.ctx, 1), domain.ErrInvalidVariantKey)

	s.Equal(1, s.stock("red", "M"))
	total, err := s.ledger.GetTotal(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, total)
	s.requireConsistent()
}

func (s *LedgerSuite) TestTryDecrementTotal_RejectsLegacyItem() {
	s.Require().NoError(s.ledger.SetLegacyStock(s.ctx, "navy", 2))

	_, _, err := s.ledger.Reserve(s.ctx, "", "", 1)
	s.ErrorIs(err, domain.ErrInvalidVariantKey)

	n, err := s.ledger.GetLegacyStock(s.ctx, "navy")
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *LedgerSuite) TestSoldOutVariantItemKeepsModel() {
	s.Require().NoError(s.ledger.SetStock(s.ctx, "red", "M", 1))

	ok, err := s.ledger.TryDecrement(s.ctx, "red", "M", 1)
	s.Require().NoError(err)
	s.True(ok)

	view, err := s.ledger.Aggregation(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.StockModelVariant, view.Model)
	s.Zero(view.GrandTotal)

	total, err := s.ledger.GetTotal(s.ctx)
	s.Require().NoError(err)
	s.Zero(total)

	_, _, err = s.ledger.Reserve(s.ctx, "", "", 1)
	s.ErrorIs(err, domain.ErrInvalidVariantKey)
	s.requireConsistent()
}

func (s *LedgerSuite) TestLegacyDecrement() {
	s.Require().NoError(s.ledger.IncrementLegacy(s.ctx, "Sand", 2))

	ok, err := s.ledger.TryDecrementLegacy(s.ctx, "sand", 3)
	s.Require().NoError(err)
	s.False(ok)

	ok, err = s.ledger.TryDecrementLegacy(s.ctx, "SAND", 2)
	s.Require().NoError(err)
	s.True(ok)

	n, err := s.ledger.GetLegacyStock(s.ctx, "sand")
	s.Require().NoError(err)
	s.Zero(n)

	_, err = s.ledger.TryDecrementLegacy(s.ctx, "", 1)
	s.ErrorIs(err, domain.ErrInvalidVariantKey)
	s.requireConsistent()
}

func (s *LedgerSuite) TestRelease_UnknownModel() {
	s.Error(s.ledger.Release(s.ctx, domain.StockModel("bogus"), "red", "M", 1))
}
