package domain

import "errors"

var (
	ErrInvalidVariantKey = errors.New("invalid variant key")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrItemNotFound      = errors.New("item not found")
	ErrOrderNotFound     = errors.New("order not found")

	// ErrVersionConflict is returned by conditional writes when the stock
	// version moved between read and write.
	ErrVersionConflict = errors.New("stock version conflict")

	// ErrAggregationDrift means the derived totals disagree with the variant
	// table. It indicates a bug in a mutation path.
	ErrAggregationDrift = errors.New("aggregation drift")
)
