package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		raw     string
		want    Size
		wantErr bool
	}{
		{raw: "m", want: SizeM},
		{raw: " xxl ", want: SizeXXL},
		{raw: "Xs", want: SizeXS},
		{raw: "XXXL", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseSize(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidVariantKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeColor(t *testing.T) {
	c, err := NormalizeColor("  Forest Green ")
	require.NoError(t, err)
	assert.Equal(t, "forest green", c)

	_, err = NormalizeColor("   ")
	assert.ErrorIs(t, err, ErrInvalidVariantKey)

	_, err = NormalizeColor("red|blue")
	assert.ErrorIs(t, err, ErrInvalidVariantKey)
}

func TestVariantKey_CaseInsensitive(t *testing.T) {
	a, err := NewVariantKey("Blue", "m")
	require.NoError(t, err)
	b, err := NewVariantKey("blue", "M")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, "blue|M", a.String())
}

func TestParseVariantKey(t *testing.T) {
	k, err := ParseVariantKey("navy|XL")
	require.NoError(t, err)
	assert.Equal(t, VariantKey{Color: "navy", Size: SizeXL}, k)

	_, err = ParseVariantKey("navy")
	assert.ErrorIs(t, err, ErrInvalidVariantKey)

	_, err = ParseVariantKey("navy|XXXL")
	assert.ErrorIs(t, err, ErrInvalidVariantKey)
}

func TestVariantTable_Variants(t *testing.T) {
	table := VariantTable{
		{Color: "red", Size: SizeL}:  1,
		{Color: "blue", Size: SizeM}: 2,
		{Color: "red", Size: SizeXS}: 3,
	}

	assert.Equal(t, []Variant{
		{Color: "blue", Size: SizeM, Stock: 2},
		{Color: "red", Size: SizeXS, Stock: 3},
		{Color: "red", Size: SizeL, Stock: 1},
	}, table.Variants())
}
