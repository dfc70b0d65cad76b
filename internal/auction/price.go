// Package auction implements the clearing and settlement core for sealed
// single-round batch auctions: order validation, price-descending ranking,
// prefix allocation with one pro-rata boundary fill, the uniform clearing
// price, and claim/refund entitlement arithmetic.
//
// All price comparisons cross-multiply in 128-bit integer space; no floating
// point touches any value that determines an entitlement.
package auction

import (
	"math/bits"

	"github.com/batchauction/auctiond/internal/domain"
)

// compareUnitPrice compares payment/quantity of two orders without division:
// a.Payment/a.Quantity <=> b.Payment/b.Quantity is decided by comparing the
// 128-bit products a.Payment*b.Quantity and b.Payment*a.Quantity. Returns
// -1, 0, or +1.
func compareUnitPrice(a, b domain.Order) int {
	ahi, alo := bits.Mul64(a.Payment, b.Quantity)
	bhi, blo := bits.Mul64(b.Payment, a.Quantity)

	switch {
	case ahi != bhi:
		if ahi < bhi {
			return -1
		}
		return 1
	case alo != blo:
		if alo < blo {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// meetsReserve reports whether payment/quantity >= reserveTotal/supply,
// again by 128-bit cross multiplication.
func meetsReserve(payment, quantity, reserveTotal, supply uint64) bool {
	lhi, llo := bits.Mul64(payment, supply)
	rhi, rlo := bits.Mul64(reserveTotal, quantity)
	if lhi != rhi {
		return lhi > rhi
	}
	return llo >= rlo
}

// checkedAdd returns a+b or ErrOverflow when the sum does not fit in uint64.
func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, domain.ErrOverflow
	}
	return sum, nil
}

// prorate returns floor(payment * part / whole). part < whole must hold, which
// bounds the quotient below payment so the 128-bit division cannot overflow.
func prorate(payment, part, whole uint64) uint64 {
	hi, lo := bits.Mul64(payment, part)
	quot, _ := bits.Div64(hi, lo, whole)
	return quot
}

// OverpayRefund returns the overpayment a winner gets back at claim time:
// payment - clearingPrice*quantity, clamped at zero. The clamp covers the
// floor-division artifact on the boundary order; for every other winner the
// delta is non-negative by construction of the winner set.
func OverpayRefund(payment, clearingPrice, quantity uint64) uint64 {
	hi, owed := bits.Mul64(clearingPrice, quantity)
	if hi != 0 || owed >= payment {
		return 0
	}
	return payment - owed
}
