package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Auction is the aggregate record for one sealed single-round batch auction.
// Parameters are fixed at creation; Settled flips false to true exactly once
// and the winner set and clearing price are immutable afterwards.
type Auction struct {
	ID            string     `json:"id"`
	Organizer     string     `json:"organizer"`
	Deadline      time.Time  `json:"deadline"`
	Supply        uint64     `json:"supply"`
	ReserveTotal  uint64     `json:"reserve_total"` // minimum total payment for the full supply
	Settled       bool       `json:"settled"`
	ClearingPrice uint64     `json:"clearing_price"` // payment per unit, zero until settled
	CreatedAt     time.Time  `json:"created_at"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
}

// CustodyAccountFor returns the ledger account that holds an auction's supply
// between creation and the winners' claims.
func CustodyAccountFor(auctionID string) string {
	return "auction:" + auctionID
}

// CustodyAccount returns the custody account for this auction.
func (a Auction) CustodyAccount() string {
	return CustodyAccountFor(a.ID)
}

// ReservePrice returns the per-unit reserve as a display decimal
// (ReserveTotal / Supply). Derived for presentation only, never persisted.
func (a Auction) ReservePrice() decimal.Decimal {
	if a.Supply == 0 {
		return decimal.Zero
	}
	return decimal.NewFromUint64(a.ReserveTotal).
		DivRound(decimal.NewFromUint64(a.Supply), 12)
}

// UnitPrice returns payment/quantity as a display decimal. Comparison and
// allocation never use this; they cross-multiply in the integer domain.
func UnitPrice(payment, quantity uint64) decimal.Decimal {
	if quantity == 0 {
		return decimal.Zero
	}
	return decimal.NewFromUint64(payment).
		DivRound(decimal.NewFromUint64(quantity), 12)
}
