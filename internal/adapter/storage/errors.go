package storage

import (
	"errors"
	"fmt"

	"github.com/rl1809/fitfast/internal/core/domain"
)

var (
	ErrItemExists  = errors.New("item already exists")
	ErrOrderExists = errors.New("order already exists")
)

// errNotFlat rejects flat-total writes on items whose total is derived from
// variant or color stock.
var errNotFlat = fmt.Errorf("%w: item tracks variant or color stock, not a flat total", domain.ErrInvalidVariantKey)
