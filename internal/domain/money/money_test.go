package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRound2_HalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"2.004", "2"},
		{"2.005", "2.01"},
		{"2.0049999", "2"},
		{"33.867924528301886792", "33.87"},
		{"0.595", "0.6"},
		{"35.9", "35.9"},
	}
	for _, c := range cases {
		got := Round2(decimal.RequireFromString(c.in))
		assert.True(t, decimal.RequireFromString(c.want).Equal(got),
			"Round2(%s) = %s, want %s", c.in, got, c.want)
	}
}

func TestRound2_AppliedOnceDoesNotCompound(t *testing.T) {
	// Summing unrounded line values then rounding once differs from
	// rounding each step; the ledger always does the former.
	a := decimal.RequireFromString("1.004")
	b := decimal.RequireFromString("1.004")

	once := Round2(a.Add(b))
	twice := Round2(a).Add(Round2(b))

	assert.True(t, decimal.RequireFromString("2.01").Equal(once))
	assert.True(t, decimal.RequireFromString("2").Equal(twice))
}

func TestQuantize(t *testing.T) {
	q := Quantize(decimal.RequireFromString("10.129"), QuantityPrecision)
	assert.True(t, decimal.RequireFromString("10.12").Equal(q))
}

func TestFloorUnits(t *testing.T) {
	assert.Equal(t, int64(359), FloorUnits(decimal.RequireFromString("35.90"), 10))
	assert.Equal(t, int64(52), FloorUnits(decimal.RequireFromString("10.57"), 5))
	assert.Equal(t, int64(0), FloorUnits(decimal.RequireFromString("0.49"), 2))
}

func TestIsNonNegative(t *testing.T) {
	assert.True(t, IsNonNegative(decimal.Zero))
	assert.True(t, IsNonNegative(decimal.RequireFromString("0.01")))
	assert.False(t, IsNonNegative(decimal.RequireFromString("-0.01")))
}
