package pricing

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := map[string]Money{
		"":       0,
		"5.99":   599,
		"50":     5000,
		" 12.5 ": 1250,
		"0.005":  1,
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseAmount("-1")
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseAmount("abc")
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseAmount("100000000000000000")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestToMinorSaturates(t *testing.T) {
	require.Equal(t, Money(400), ToMinor(decimal.RequireFromString("4.00")))
	require.Equal(t, Money(1), ToMinor(decimal.RequireFromString("0.005")))
	require.Zero(t, ToMinor(decimal.RequireFromString("-3.00")))
	require.Equal(t, Money(math.MaxInt64), ToMinor(decimal.RequireFromString("100000000000000000")))
	require.Equal(t, Money(math.MaxInt64), ApplyRate(math.MaxInt64, decimal.RequireFromString("2")))
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "49.55", FormatAmount(4955))
	require.Equal(t, "0.00", FormatAmount(0))
	require.Equal(t, "0.07", FormatAmount(7))
}

func TestApplyRateRoundsHalfAwayFromZero(t *testing.T) {
	rate := decimal.RequireFromString("0.21")
	require.Equal(t, Money(756), ApplyRate(3600, rate))
	// 50 * 0.21 = 10.5
	require.Equal(t, Money(11), ApplyRate(50, rate))
	require.Zero(t, ApplyRate(-100, rate))
	require.Zero(t, ApplyRate(100, decimal.Zero))
}

func TestClamp(t *testing.T) {
	require.Equal(t, Money(0), clamp(-5, 0, 10))
	require.Equal(t, Money(10), clamp(50, 0, 10))
	require.Equal(t, Money(3), clamp(3, 0, 10))
	require.Equal(t, Money(0), clamp(3, 0, -1))
}

func TestNewSnapshotDropsEmptyRows(t *testing.T) {
	variant := "v-1"
	snap := NewSnapshot([]CartLineItem{
		{ProductID: "p-1", Quantity: 2, UnitPrice: 1500},
		{ProductID: "p-2", Quantity: 0, UnitPrice: 999},
		{ProductID: "p-3", VariantID: &variant, Quantity: 1, UnitPrice: -10},
	})
	require.Equal(t, Money(3000), snap.Subtotal)
	require.Len(t, snap.Items, 2)
	require.Zero(t, snap.Items[1].UnitPrice)

	variant = "changed"
	require.Equal(t, "v-1", *snap.Items[1].VariantID)
}
