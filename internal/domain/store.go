package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// AuctionStore persists auction aggregates and their settled winner sets.
// Settle, Claim, and Refund are transactional: they either commit every
// mutation they describe or none.
type AuctionStore interface {
	Create(ctx context.Context, a Auction) error
	GetByID(ctx context.Context, id string) (Auction, error)
	List(ctx context.Context, opts ListOpts) ([]Auction, error)

	// Settle atomically marks the auction settled, records the clearing
	// price, and inserts the winner set. It returns ErrAlreadySettled when
	// another settlement committed first.
	Settle(ctx context.Context, id string, winners []WinnerEntry, clearingPrice uint64, settledAt time.Time) error

	// Winners returns the winner set in position order.
	Winners(ctx context.Context, id string) ([]WinnerEntry, error)

	// Claim atomically marks the bidder's first unclaimed winner entry as
	// claimed, moves the won units from the auction's custody account to the
	// bidder, and enqueues the overpayment refund. ErrNothingToClaim when no
	// unclaimed entry exists.
	Claim(ctx context.Context, id, bidder string) (ClaimResult, error)

	// Refund atomically records the bidder in the refunded set and enqueues
	// the return of their first order's full payment. It fails with
	// ErrNoOrderFound, ErrWinnerNoRefund, or ErrAlreadyRefunded.
	Refund(ctx context.Context, id, bidder string) (uint64, error)
}

// OrderStore persists the append-only order ledger of each auction.
type OrderStore interface {
	// Append validates nothing business-level; it assigns the next sequence
	// number and inserts, refusing only when the auction is already settled.
	Append(ctx context.Context, order Order) (Order, error)
	ListByAuction(ctx context.Context, auctionID string) ([]Order, error)
	ListByBidder(ctx context.Context, auctionID, bidder string) ([]Order, error)
}

// AssetLedger is the fungible-ledger collaborator: account registration,
// balance lookup, minting, and transfers of the sale asset.
type AssetLedger interface {
	Register(ctx context.Context, account string) error
	IsRegistered(ctx context.Context, account string) (bool, error)
	BalanceOf(ctx context.Context, account string) (uint64, error)
	Mint(ctx context.Context, to string, quantity uint64) error
	Transfer(ctx context.Context, from, to string, quantity uint64) error
}

// Payout is one queued value transfer produced by a claim or refund. Rows are
// committed in the same transaction as the entitlement change and dispatched
// afterwards, so a failed transfer can never re-enable a claim or refund.
type Payout struct {
	ID        string     `json:"id"`
	AuctionID string     `json:"auction_id"`
	Account   string     `json:"account"`
	Amount    uint64     `json:"amount"`
	Reason    string     `json:"reason"` // claim_refund | loser_refund | deposit_change
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// PayoutStore persists the payout outbox.
type PayoutStore interface {
	Enqueue(ctx context.Context, p Payout) error
	ListPending(ctx context.Context, limit int) ([]Payout, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
}

// PaymentSender delivers a queued payout to its recipient. Fire-and-forget:
// the core never waits on an acknowledgement beyond the send itself.
type PaymentSender interface {
	Pay(ctx context.Context, to string, amount uint64, reason string) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub event fan-out and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// BlobWriter uploads an object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
