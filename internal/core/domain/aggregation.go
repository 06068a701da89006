package domain

import "fmt"

// StockModel is the representation an item's stock is currently kept in.
type StockModel string

const (
	StockModelVariant StockModel = "variant"
	StockModelLegacy  StockModel = "legacy"
	StockModelFlat    StockModel = "flat"
)

// AggregationView holds roll-ups derived from the variant table (or, for
// legacy items, from the color-only map). It is never authoritative.
type AggregationView struct {
	Model       StockModel     `json:"model"`
	ColorTotals map[string]int `json:"color_totals"`
	SizeTotals  map[Size]int   `json:"size_totals"`
	GrandTotal  int            `json:"grand_total"`
}

func AggregateVariants(t VariantTable) AggregationView {
	view := AggregationView{
		Model:       StockModelVariant,
		ColorTotals: make(map[string]int),
		SizeTotals:  make(map[Size]int),
	}
	for k, stock := range t {
		if stock <= 0 {
			continue
		}
		view.ColorTotals[k.Color] += stock
		view.SizeTotals[k.Size] += stock
		view.GrandTotal += stock
	}
	return view
}

func AggregateColors(colors map[string]int) AggregationView {
	view := AggregationView{
		Model:       StockModelLegacy,
		ColorTotals: make(map[string]int),
		SizeTotals:  make(map[Size]int),
	}
	for color, stock := range colors {
		if stock <= 0 {
			continue
		}
		view.ColorTotals[color] += stock
		view.GrandTotal += stock
	}
	return view
}

func AggregateFlat(total int) AggregationView {
	return AggregationView{
		Model:       StockModelFlat,
		ColorTotals: make(map[string]int),
		SizeTotals:  make(map[Size]int),
		GrandTotal:  max(total, 0),
	}
}

// Verify checks that both roll-up dimensions sum to the grand total.
func (v AggregationView) Verify() error {
	colorSum := 0
	for _, n := range v.ColorTotals {
		colorSum += n
	}
	sizeSum := 0
	for _, n := range v.SizeTotals {
		sizeSum += n
	}

	switch v.Model {
	case StockModelVariant:
		if colorSum != v.GrandTotal || sizeSum != v.GrandTotal {
			return fmt.Errorf("%w: colors=%d sizes=%d grand=%d", ErrAggregationDrift, colorSum, sizeSum, v.GrandTotal)
		}
	case StockModelLegacy:
		if colorSum != v.GrandTotal || sizeSum != 0 {
			return fmt.Errorf("%w: colors=%d sizes=%d grand=%d", ErrAggregationDrift, colorSum, sizeSum, v.GrandTotal)
		}
	}
	return nil
}

// Equal compares two views, treating nil and empty maps alike.
func (v AggregationView) Equal(o AggregationView) bool {
	if v.Model != o.Model || v.GrandTotal != o.GrandTotal {
		return false
	}
	if len(v.ColorTotals) != len(o.ColorTotals) || len(v.SizeTotals) != len(o.SizeTotals) {
		return false
	}
	for k, n := range v.ColorTotals {
		if o.ColorTotals[k] != n {
			return false
		}
	}
	for k, n := range v.SizeTotals {
		if o.SizeTotals[k] != n {
			return false
		}
	}
	return true
}
