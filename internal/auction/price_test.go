package auction

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/batchauction/auctiond/internal/domain"
)

func o(quantity, payment uint64) domain.Order {
	return domain.Order{Quantity: quantity, Payment: payment}
}

func TestCompareUnitPrice(t *testing.T) {
	tests := []struct {
		name string
		a, b domain.Order
		want int
	}{
		{"greater", o(60, 70), o(50, 55), 1},  // 1.166 vs 1.1
		{"less", o(10, 10), o(50, 55), -1},    // 1.0 vs 1.1
		{"equal", o(80, 80), o(20, 20), 0},    // 1.0 vs 1.0
		{"equal fractions", o(3, 7), o(6, 14), 0},
		{"close ratios", o(3, 10), o(7, 23), 1}, // 3.333 vs 3.285
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compareUnitPrice(tt.a, tt.b))
			assert.Equal(t, -tt.want, compareUnitPrice(tt.b, tt.a))
		})
	}
}

func TestCompareUnitPriceExtremeMagnitudes(t *testing.T) {
	// Adjacent ratios near 2^64 collapse to the same float64; the 128-bit
	// cross multiplication must still order them.
	a := o(math.MaxUint64, math.MaxUint64)   // exactly 1
	b := o(math.MaxUint64-1, math.MaxUint64) // slightly above 1
	assert.Equal(t, -1, compareUnitPrice(a, b))
	assert.Equal(t, 1, compareUnitPrice(b, a))

	af := float64(a.Payment) / float64(a.Quantity)
	bf := float64(b.Payment) / float64(b.Quantity)
	assert.Equal(t, af, bf, "float64 cannot distinguish these ratios")
}

func TestMeetsReserve(t *testing.T) {
	// reserve 50/100 = 0.5 per unit
	assert.True(t, meetsReserve(5, 10, 50, 100))
	assert.True(t, meetsReserve(6, 10, 50, 100))
	assert.False(t, meetsReserve(4, 10, 50, 100))

	// extremes: both products exceed 64 bits
	assert.True(t, meetsReserve(math.MaxUint64, 1, math.MaxUint64, 1))
	assert.False(t, meetsReserve(math.MaxUint64-1, 1, math.MaxUint64, 1))
}

func TestCheckedAdd(t *testing.T) {
	sum, err := checkedAdd(math.MaxUint64-1, 1)
	assert.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), sum)

	_, err = checkedAdd(math.MaxUint64, 1)
	assert.ErrorIs(t, err, domain.ErrOverflow)
}

func TestProrate(t *testing.T) {
	assert.Equal(t, uint64(44), prorate(55, 40, 50))
	assert.Equal(t, uint64(4), prorate(7, 2, 3)) // floor, not round
	// 128-bit intermediate: payment*part overflows uint64
	assert.Equal(t, uint64(math.MaxUint64/2), prorate(math.MaxUint64, 1, 2))
}

func TestOverpayRefund(t *testing.T) {
	// winner paid 70 for 60 units at clearing price 1: refund 10
	assert.Equal(t, uint64(10), OverpayRefund(70, 1, 60))
	// boundary order where floor-priced cost equals payment
	assert.Equal(t, uint64(0), OverpayRefund(44, 1, 44))
	// floor artifact: owed exceeds payment, clamp to zero rather than underflow
	assert.Equal(t, uint64(0), OverpayRefund(4, 3, 2))
	// 128-bit owed clamps to zero
	assert.Equal(t, uint64(0), OverpayRefund(100, math.MaxUint64, math.MaxUint64))
}
