package profit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetPriceLadder(t *testing.T) {
	cases := []struct {
		gross, net float64
	}{
		{0.02, 0.00},
		{0.03, 0.00},
		{0.23, 0.19},
		{1.00, 0.87},
		{10.00, 8.68},
		{45.50, 39.56},
		{100.00, 86.95},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.net, NetPrice(tc.gross), 0.011, "gross %.2f", tc.gross)
	}
}

func TestNetPriceApproximatesCombinedCommission(t *testing.T) {
	// The ladder tracks the 15% combined commission: net ≈ gross/1.15.
	for _, gross := range []float64{1, 5, 25, 80, 250, 500} {
		assert.InDelta(t, gross/1.15, NetPrice(gross), 0.03, "gross %.2f", gross)
	}
}

func TestNetPriceNearMonotonic(t *testing.T) {
	// At interval boundaries the fee can step by two cents against a
	// one-cent price move, so net may dip by at most one cent.
	prev := NetPrice(0.01)
	for cents := 2; cents <= 50000; cents++ {
		gross := float64(cents) / 100
		n := NetPrice(gross)
		assert.GreaterOrEqual(t, n, prev-0.01-1e-9, "gross %.2f", gross)
		prev = n
	}
}

func TestNetPriceNeverNegative(t *testing.T) {
	for _, gross := range []float64{0, 0.01, 0.02, 0.05} {
		assert.GreaterOrEqual(t, NetPrice(gross), 0.0)
	}
}

func TestMargin(t *testing.T) {
	abs, pct := Margin(45.50, 37.83)
	assert.InDelta(t, 1.73, abs, 1e-9)
	assert.InDelta(t, 0.0457, pct, 0.001)

	abs, pct = Margin(10, 0)
	assert.Zero(t, abs)
	assert.Zero(t, pct)
}
