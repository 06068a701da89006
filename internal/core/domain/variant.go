package domain

import (
	"fmt"
	"sort"
	"strings"
)

type Size string

const (
	SizeXS  Size = "XS"
	SizeS   Size = "S"
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"
)

// Sizes lists every size in display order.
var Sizes = []Size{SizeXS, SizeS, SizeM, SizeL, SizeXL, SizeXXL}

const keySeparator = "|"

func (s Size) rank() int {
	for i, size := range Sizes {
		if size == s {
			return i
		}
	}
	return len(Sizes)
}

// ParseSize upper-cases and validates a size token.
func ParseSize(raw string) (Size, error) {
	size := Size(strings.ToUpper(strings.TrimSpace(raw)))
	if size.rank() == len(Sizes) {
		return "", fmt.Errorf("%w: unknown size %q", ErrInvalidVariantKey, raw)
	}
	return size, nil
}

// NormalizeColor lower-cases a color so that "Blue" and "blue" share stock.
func NormalizeColor(raw string) (string, error) {
	color := strings.ToLower(strings.TrimSpace(raw))
	if color == "" {
		return "", fmt.Errorf("%w: empty color", ErrInvalidVariantKey)
	}
	if strings.Contains(color, keySeparator) {
		return "", fmt.Errorf("%w: color %q contains %q", ErrInvalidVariantKey, raw, keySeparator)
	}
	return color, nil
}

// VariantKey identifies one (color, size) stock entry. Always build it with
// NewVariantKey or ParseVariantKey so both parts are normalized.
type VariantKey struct {
	Color string
	Size  Size
}

func NewVariantKey(color, size string) (VariantKey, error) {
	c, err := NormalizeColor(color)
	if err != nil {
		return VariantKey{}, err
	}
	s, err := ParseSize(size)
	if err != nil {
		return VariantKey{}, err
	}
	return VariantKey{Color: c, Size: s}, nil
}

// ParseVariantKey decodes the "<color>|<SIZE>" storage encoding.
func ParseVariantKey(encoded string) (VariantKey, error) {
	color, size, ok := strings.Cut(encoded, keySeparator)
	if !ok {
		return VariantKey{}, fmt.Errorf("%w: %q", ErrInvalidVariantKey, encoded)
	}
	return NewVariantKey(color, size)
}

func (k VariantKey) String() string {
	return k.Color + keySeparator + string(k.Size)
}

type Variant struct {
	Color string `json:"color"`
	Size  Size   `json:"size"`
	Stock int    `json:"stock"`
}

// VariantTable maps a variant to its stock. Entries are always positive;
// a variant with no stock has no entry.
type VariantTable map[VariantKey]int

// Variants returns the table as records sorted by color, then size.
func (t VariantTable) Variants() []Variant {
	out := make([]Variant, 0, len(t))
	for k, stock := range t {
		out = append(out, Variant{Color: k.Color, Size: k.Size, Stock: stock})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Color != out[j].Color {
			return out[i].Color < out[j].Color
		}
		return out[i].Size.rank() < out[j].Size.rank()
	})
	return out
}

func (t VariantTable) Clone() VariantTable {
	out := make(VariantTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
