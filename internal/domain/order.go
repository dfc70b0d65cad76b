package domain

import "time"

// Order is a sealed bid: a request to buy Quantity sale-asset units for a
// total Payment in the smallest payment unit. Orders are immutable once
// stored; a partial fill at settlement produces a synthetic winner entry,
// never a mutation of the original order.
type Order struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auction_id"`
	Seq       int64     `json:"seq"` // insertion order, the tie-break for equal prices
	Bidder    string    `json:"bidder"`
	Quantity  uint64    `json:"quantity"`
	Payment   uint64    `json:"payment"`
	CreatedAt time.Time `json:"created_at"`
}

// WinnerEntry is one row of the settled winner set. Order may be a synthetic
// partial fill of the original bid at the supply boundary. Claimed flips to
// true exactly once, when the bidder collects this entry.
type WinnerEntry struct {
	Position int   `json:"position"` // 0-based rank in the winner set
	Order    Order `json:"order"`
	Partial  bool  `json:"partial"`
	Claimed  bool  `json:"claimed"`
}

// ClaimResult reports the outcome of a successful claim: the units handed
// over and the overpayment returned at the uniform clearing price.
type ClaimResult struct {
	Position int    `json:"position"`
	Quantity uint64 `json:"quantity"`
	Refund   uint64 `json:"refund"`
}
