package auction

import (
	"time"

	"github.com/batchauction/auctiond/internal/domain"
)

// NextClaim finds the bidder's first unclaimed winner entry. A bidder with
// several winning orders claims them one call at a time, in winner-set order.
// The returned ClaimResult carries the units owed and the overpayment refund
// at the uniform clearing price.
func NextClaim(a domain.Auction, winners []domain.WinnerEntry, bidder string) (domain.ClaimResult, error) {
	if !a.Settled {
		return domain.ClaimResult{}, domain.ErrNotSettled
	}
	for _, w := range winners {
		if w.Order.Bidder != bidder || w.Claimed {
			continue
		}
		return domain.ClaimResult{
			Position: w.Position,
			Quantity: w.Order.Quantity,
			Refund:   OverpayRefund(w.Order.Payment, a.ClearingPrice, w.Order.Quantity),
		}, nil
	}
	return domain.ClaimResult{}, domain.ErrNothingToClaim
}

// RefundAmount decides a loser's refund: the full payment of the bidder's
// first order. orders is the bidder's own submissions, won reports whether
// the bidder appears anywhere in the winner set, and refunded whether they
// already exercised the refund.
func RefundAmount(a domain.Auction, orders []domain.Order, won, refunded bool) (uint64, error) {
	switch {
	case !a.Settled:
		return 0, domain.ErrNotSettled
	case len(orders) == 0:
		return 0, domain.ErrNoOrderFound
	case won:
		return 0, domain.ErrWinnerNoRefund
	case refunded:
		return 0, domain.ErrAlreadyRefunded
	}
	return orders[0].Payment, nil
}

// CanSettle reports whether settlement may run at the given clock reading.
func CanSettle(a domain.Auction, now time.Time) error {
	if a.Settled {
		return domain.ErrAlreadySettled
	}
	if !now.After(a.Deadline) {
		return domain.ErrBiddingOpen
	}
	return nil
}
