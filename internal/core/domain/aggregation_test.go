package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateVariants(t *testing.T) {
	view := AggregateVariants(VariantTable{
		{Color: "red", Size: SizeM}:  2,
		{Color: "red", Size: SizeL}:  3,
		{Color: "blue", Size: SizeM}: 4,
	})

	assert.Equal(t, StockModelVariant, view.Model)
	assert.Equal(t, map[string]int{"red": 5, "blue": 4}, view.ColorTotals)
	assert.Equal(t, map[Size]int{SizeM: 6, SizeL: 3}, view.SizeTotals)
	assert.Equal(t, 9, view.GrandTotal)
	assert.NoError(t, view.Verify())
}

func TestAggregateColors(t *testing.T) {
	view := AggregateColors(map[string]int{"navy": 3, "sand": 1})

	assert.Equal(t, StockModelLegacy, view.Model)
	assert.Equal(t, 4, view.GrandTotal)
	assert.Empty(t, view.SizeTotals)
	assert.NoError(t, view.Verify())
}

func TestAggregationView_VerifyDetectsDrift(t *testing.T) {
	view := AggregateVariants(VariantTable{{Color: "red", Size: SizeM}: 2})
	view.SizeTotals[SizeL] = 1
	assert.ErrorIs(t, view.Verify(), ErrAggregationDrift)

	view = AggregateVariants(VariantTable{{Color: "red", Size: SizeM}: 2})
	view.GrandTotal = 3
	assert.ErrorIs(t, view.Verify(), ErrAggregationDrift)

	legacy := AggregateColors(map[string]int{"navy": 3})
	legacy.SizeTotals[SizeM] = 3
	assert.ErrorIs(t, legacy.Verify(), ErrAggregationDrift)

	assert.NoError(t, AggregateFlat(7).Verify())
}

func TestAggregationView_Equal(t *testing.T) {
	a := AggregateVariants(VariantTable{{Color: "red", Size: SizeM}: 2})
	b := AggregationView{
		Model:       StockModelVariant,
		ColorTotals: map[string]int{"red": 2},
		SizeTotals:  map[Size]int{SizeM: 2},
		GrandTotal:  2,
	}
	assert.True(t, a.Equal(b))

	b.SizeTotals[SizeM] = 1
	assert.False(t, a.Equal(b))

	assert.True(t, AggregateFlat(0).Equal(AggregationView{Model: StockModelFlat}))
}

func TestStockSnapshot_Model(t *testing.T) {
	assert.Equal(t, StockModelFlat, StockSnapshot{Total: 3}.Model())
	assert.Equal(t, StockModelLegacy, StockSnapshot{ColorStock: map[string]int{"navy": 1}}.Model())
	assert.Equal(t, StockModelVariant, StockSnapshot{
		Variants:   VariantTable{{Color: "red", Size: SizeM}: 1},
		ColorStock: map[string]int{"navy": 1},
	}.Model())

	soldOut := StockSnapshot{Total: 5, Aggregation: AggregationView{Model: StockModelVariant}}
	assert.Equal(t, StockModelVariant, soldOut.Model())
	assert.Zero(t, soldOut.Recompute().GrandTotal)

	assert.Equal(t, 3, StockSnapshot{Total: 3}.Recompute().GrandTotal)
}
