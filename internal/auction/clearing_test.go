package auction

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchauction/auctiond/internal/domain"
)

var (
	deadline  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	beforeEnd = deadline.Add(-time.Hour)
	afterEnd  = deadline.Add(time.Hour)
)

func testAuction(supply, reserveTotal uint64) domain.Auction {
	return domain.Auction{
		ID:           "a1",
		Organizer:    "organizer.near",
		Deadline:     deadline,
		Supply:       supply,
		ReserveTotal: reserveTotal,
	}
}

func order(seq int64, bidder string, quantity, payment uint64) domain.Order {
	return domain.Order{
		ID:        bidder + "-order",
		AuctionID: "a1",
		Seq:       seq,
		Bidder:    bidder,
		Quantity:  quantity,
		Payment:   payment,
	}
}

func TestClearUniformPriceWithPartialFill(t *testing.T) {
	// Supply 100, reserve 0.5/unit. X offers 60 for 70 (1.166), Y offers 50
	// for 55 (1.1), Z offers 10 for 10 (1.0). X wins whole, Y is cut to 40
	// units for 44 payment, Z loses. Clearing price 44/40 = 1.1.
	a := testAuction(100, 50)
	orders := []domain.Order{
		order(1, "x", 60, 70),
		order(2, "y", 50, 55),
		order(3, "z", 10, 10),
	}

	winners, price, err := Clear(a, orders, afterEnd)
	require.NoError(t, err)
	require.Len(t, winners, 2)

	assert.Equal(t, "x", winners[0].Order.Bidder)
	assert.Equal(t, uint64(60), winners[0].Order.Quantity)
	assert.Equal(t, uint64(70), winners[0].Order.Payment)
	assert.False(t, winners[0].Partial)

	assert.Equal(t, "y", winners[1].Order.Bidder)
	assert.Equal(t, uint64(40), winners[1].Order.Quantity)
	assert.Equal(t, uint64(44), winners[1].Order.Payment)
	assert.True(t, winners[1].Partial)

	assert.Equal(t, uint64(1), price) // floor(44/40)

	var total uint64
	for _, w := range winners {
		total += w.Order.Quantity
	}
	assert.Equal(t, a.Supply, total)
}

func TestClearTieBreaksBySubmissionOrder(t *testing.T) {
	// Two orders at the same unit price: the earlier submission fills first.
	a := testAuction(100, 0)
	orders := []domain.Order{
		order(1, "early", 80, 80),
		order(2, "late", 80, 80),
	}

	winners, _, err := Clear(a, orders, afterEnd)
	require.NoError(t, err)
	require.Len(t, winners, 2)

	assert.Equal(t, "early", winners[0].Order.Bidder)
	assert.Equal(t, uint64(80), winners[0].Order.Quantity)
	assert.Equal(t, "late", winners[1].Order.Bidder)
	assert.Equal(t, uint64(20), winners[1].Order.Quantity)
	assert.True(t, winners[1].Partial)
}

func TestClearStopsAtExactSupplyBoundary(t *testing.T) {
	// remaining == 0 after the second order: the third must not produce a
	// zero-quantity synthetic entry.
	a := testAuction(100, 0)
	orders := []domain.Order{
		order(1, "x", 60, 120),
		order(2, "y", 40, 44),
		order(3, "z", 10, 10),
	}

	winners, price, err := Clear(a, orders, afterEnd)
	require.NoError(t, err)
	require.Len(t, winners, 2)
	assert.Equal(t, "y", winners[1].Order.Bidder)
	assert.False(t, winners[1].Partial)
	assert.Equal(t, uint64(1), price) // floor(44/40)
}

func TestClearDemandBelowSupply(t *testing.T) {
	a := testAuction(100, 0)
	orders := []domain.Order{
		order(1, "x", 30, 90),
		order(2, "y", 20, 30),
	}

	winners, price, err := Clear(a, orders, afterEnd)
	require.NoError(t, err)
	require.Len(t, winners, 2)

	var total uint64
	for _, w := range winners {
		total += w.Order.Quantity
	}
	assert.Less(t, total, a.Supply)
	assert.Equal(t, uint64(1), price) // last winner 30/20, floor
}

func TestClearRejections(t *testing.T) {
	a := testAuction(100, 50)
	orders := []domain.Order{order(1, "x", 10, 20)}

	_, _, err := Clear(a, orders, beforeEnd)
	assert.ErrorIs(t, err, domain.ErrBiddingOpen)

	_, _, err = Clear(a, orders, deadline)
	assert.ErrorIs(t, err, domain.ErrBiddingOpen, "settling exactly at the deadline is rejected")

	settled := a
	settled.Settled = true
	_, _, err = Clear(settled, orders, afterEnd)
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)

	_, _, err = Clear(a, nil, afterEnd)
	assert.ErrorIs(t, err, domain.ErrNoOrders)
}

func TestClearOverflowIsFatal(t *testing.T) {
	a := testAuction(math.MaxUint64, 0)
	orders := []domain.Order{
		order(1, "x", math.MaxUint64, 1),
		order(2, "y", math.MaxUint64, 1),
	}

	_, _, err := Clear(a, orders, afterEnd)
	assert.ErrorIs(t, err, domain.ErrOverflow)
}

func TestClearProRataPaymentFloorsDown(t *testing.T) {
	// Boundary order: 7 payment for 3 units, 2 remaining. 7*2/3 = 4 (floor),
	// biased toward the organizer.
	a := testAuction(10, 0)
	orders := []domain.Order{
		order(1, "x", 8, 80),
		order(2, "y", 3, 7),
	}

	winners, price, err := Clear(a, orders, afterEnd)
	require.NoError(t, err)
	require.Len(t, winners, 2)
	assert.Equal(t, uint64(2), winners[1].Order.Quantity)
	assert.Equal(t, uint64(4), winners[1].Order.Payment)
	assert.Equal(t, uint64(2), price) // floor(4/2)
}

func TestValidateSubmit(t *testing.T) {
	a := testAuction(100, 50)

	tests := []struct {
		name       string
		registered bool
		now        time.Time
		quantity   uint64
		payment    uint64
		want       error
	}{
		{"ok", true, beforeEnd, 10, 20, nil},
		{"ok at reserve", true, beforeEnd, 10, 5, nil},
		{"unregistered", false, beforeEnd, 10, 20, domain.ErrNotRegistered},
		{"past deadline", true, afterEnd, 10, 20, domain.ErrBiddingClosed},
		{"at deadline", true, deadline, 10, 20, domain.ErrBiddingClosed},
		{"zero payment", true, beforeEnd, 10, 0, domain.ErrInvalidAmount},
		{"zero quantity", true, beforeEnd, 0, 20, domain.ErrInvalidAmount},
		{"over supply", true, beforeEnd, 101, 200, domain.ErrExceedsSupply},
		{"below reserve", true, beforeEnd, 10, 4, domain.ErrBelowReserve},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubmit(a, tt.registered, tt.now, tt.quantity, tt.payment)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestValidateSubmitAfterSettlement(t *testing.T) {
	a := testAuction(100, 0)
	a.Settled = true
	err := ValidateSubmit(a, true, beforeEnd, 10, 20)
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)
}
