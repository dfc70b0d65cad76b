package auction

import (
	"sort"
	"time"

	"github.com/batchauction/auctiond/internal/domain"
)

// ValidateSubmit checks every submit precondition against the auction
// parameters. registered is the fungible-ledger registration state of the
// bidder; now is the externally supplied clock reading. Each violation maps
// to its own sentinel and leaves no trace: validation has no side effects.
func ValidateSubmit(a domain.Auction, registered bool, now time.Time, quantity, payment uint64) error {
	switch {
	case !registered:
		return domain.ErrNotRegistered
	case a.Settled:
		return domain.ErrAlreadySettled
	case !now.Before(a.Deadline):
		return domain.ErrBiddingClosed
	case payment == 0 || quantity == 0:
		return domain.ErrInvalidAmount
	case quantity > a.Supply:
		return domain.ErrExceedsSupply
	case !meetsReserve(payment, quantity, a.ReserveTotal, a.Supply):
		return domain.ErrBelowReserve
	}
	return nil
}

// Clear runs the clearing algorithm over the submitted orders and returns the
// ordered winner set and the uniform clearing price. It is a pure function:
// callers persist the result exactly once.
//
// Orders are ranked by descending unit price with submission order breaking
// ties (the sort is stable and the input is expected in submission order).
// The ranked list is consumed as a prefix until the supply is exhausted; the
// order that straddles the boundary is replaced by a synthetic entry for the
// remaining quantity with its payment reduced pro rata, rounding down. The
// clearing price is the last winner's payment divided by its quantity,
// rounding down. Both floors deliberately favour the organizer.
func Clear(a domain.Auction, orders []domain.Order, now time.Time) ([]domain.WinnerEntry, uint64, error) {
	if a.Settled {
		return nil, 0, domain.ErrAlreadySettled
	}
	if !now.After(a.Deadline) {
		return nil, 0, domain.ErrBiddingOpen
	}
	if len(orders) == 0 {
		return nil, 0, domain.ErrNoOrders
	}

	ranked := make([]domain.Order, len(orders))
	copy(ranked, orders)
	sort.SliceStable(ranked, func(i, j int) bool {
		return compareUnitPrice(ranked[i], ranked[j]) > 0
	})

	var (
		winners   []domain.WinnerEntry
		allocated uint64
	)
	for _, ord := range ranked {
		next, err := checkedAdd(allocated, ord.Quantity)
		if err != nil {
			return nil, 0, err
		}
		if next <= a.Supply {
			winners = append(winners, domain.WinnerEntry{
				Position: len(winners),
				Order:    ord,
			})
			allocated = next
			continue
		}

		remaining := a.Supply - allocated
		if remaining > 0 {
			fill := ord
			fill.Quantity = remaining
			fill.Payment = prorate(ord.Payment, remaining, ord.Quantity)
			winners = append(winners, domain.WinnerEntry{
				Position: len(winners),
				Order:    fill,
				Partial:  true,
			})
		}
		// Supply exhausted; every lower-ranked order loses.
		break
	}

	if len(winners) == 0 {
		// Unreachable while submit enforces quantity <= supply, but the
		// last-winner lookup must never run on an empty set.
		return nil, 0, domain.ErrNoOrders
	}

	last := winners[len(winners)-1].Order
	clearingPrice := last.Payment / last.Quantity

	return winners, clearingPrice, nil
}
