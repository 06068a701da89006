package domain

import "time"

type GarmentType string

const (
	GarmentTop       GarmentType = "top"
	GarmentBottom    GarmentType = "bottom"
	GarmentDress     GarmentType = "dress"
	GarmentOuterwear GarmentType = "outerwear"
)

type Item struct {
	ID          string
	Name        string
	PriceCents  int64
	Description string
	GarmentType GarmentType
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StockSnapshot is a consistent read of one item's stock state. Version is
// bumped by every stock mutation and guards aggregation writes.
type StockSnapshot struct {
	ItemID      string
	Variants    VariantTable
	ColorStock  map[string]int
	Total       int
	Aggregation AggregationView
	Version     int64
}

// Model picks the variant table when present, then the legacy color map.
// A sold-out item keeps the model it was last aggregated under, so its
// total drops to zero instead of falling back to the flat quantity.
func (s StockSnapshot) Model() StockModel {
	switch {
	case len(s.Variants) > 0:
		return StockModelVariant
	case len(s.ColorStock) > 0:
		return StockModelLegacy
	case s.Aggregation.Model == StockModelVariant, s.Aggregation.Model == StockModelLegacy:
		return s.Aggregation.Model
	default:
		return StockModelFlat
	}
}

// Recompute derives a fresh view from the authoritative data in the snapshot.
func (s StockSnapshot) Recompute() AggregationView {
	switch s.Model() {
	case StockModelVariant:
		return AggregateVariants(s.Variants)
	case StockModelLegacy:
		return AggregateColors(s.ColorStock)
	default:
		return AggregateFlat(s.Total)
	}
}
