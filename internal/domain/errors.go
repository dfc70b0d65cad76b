package domain

import "errors"

// Precondition violations. Each submit/settle precondition maps to its own
// sentinel so callers can report the exact rejection reason.
var (
	ErrNotRegistered  = errors.New("bidder not registered with the ledger")
	ErrBiddingClosed  = errors.New("bidding deadline has passed")
	ErrBiddingOpen    = errors.New("bidding deadline has not passed yet")
	ErrAlreadySettled = errors.New("auction already settled")
	ErrNotSettled     = errors.New("auction not settled yet")
	ErrNoOrders       = errors.New("auction has no orders")
	ErrInvalidAmount  = errors.New("amount must be greater than zero")
	ErrExceedsSupply  = errors.New("quantity exceeds auctioned supply")
	ErrBelowReserve   = errors.New("offer price below reserve price")
)

// ErrOverflow reports integer overflow. Overflow is fatal for any value that
// determines an entitlement; it is never silently saturated.
var ErrOverflow = errors.New("arithmetic overflow")

// Claim/refund eligibility failures.
var (
	ErrNothingToClaim  = errors.New("no unclaimed winning order for bidder")
	ErrNoOrderFound    = errors.New("no order found for bidder")
	ErrWinnerNoRefund  = errors.New("winning bidders cannot claim a refund")
	ErrAlreadyRefunded = errors.New("refund already claimed")
)

// Infrastructure errors shared across stores and caches.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrRateLimited       = errors.New("rate limited")
	ErrLockHeld          = errors.New("lock already held")
)
