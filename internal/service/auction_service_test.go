package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchauction/auctiond/internal/config"
	"github.com/batchauction/auctiond/internal/domain"
)

// In-memory fakes. Each one implements just enough of its interface for the
// orchestration paths under test; the clearing arithmetic itself is covered
// in internal/auction.

type fakeAuctionStore struct {
	auctions map[string]domain.Auction
	winners  map[string][]domain.WinnerEntry
	claims   map[string]domain.ClaimResult
	refunds  map[string]uint64
}

func newFakeAuctionStore() *fakeAuctionStore {
	return &fakeAuctionStore{
		auctions: map[string]domain.Auction{},
		winners:  map[string][]domain.WinnerEntry{},
		claims:   map[string]domain.ClaimResult{},
		refunds:  map[string]uint64{},
	}
}

func (f *fakeAuctionStore) Create(_ context.Context, a domain.Auction) error {
	if _, ok := f.auctions[a.ID]; ok {
		return domain.ErrAlreadyExists
	}
	f.auctions[a.ID] = a
	return nil
}

func (f *fakeAuctionStore) GetByID(_ context.Context, id string) (domain.Auction, error) {
	a, ok := f.auctions[id]
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeAuctionStore) List(_ context.Context, _ domain.ListOpts) ([]domain.Auction, error) {
	var out []domain.Auction
	for _, a := range f.auctions {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAuctionStore) Settle(_ context.Context, id string, winners []domain.WinnerEntry, clearingPrice uint64, settledAt time.Time) error {
	a, ok := f.auctions[id]
	if !ok {
		return domain.ErrNotFound
	}
	if a.Settled {
		return domain.ErrAlreadySettled
	}
	a.Settled = true
	a.ClearingPrice = clearingPrice
	a.SettledAt = &settledAt
	f.auctions[id] = a
	f.winners[id] = winners
	return nil
}

func (f *fakeAuctionStore) Winners(_ context.Context, id string) ([]domain.WinnerEntry, error) {
	return f.winners[id], nil
}

func (f *fakeAuctionStore) Claim(_ context.Context, id, bidder string) (domain.ClaimResult, error) {
	res, ok := f.claims[id+"/"+bidder]
	if !ok {
		return domain.ClaimResult{}, domain.ErrNothingToClaim
	}
	delete(f.claims, id+"/"+bidder)
	return res, nil
}

func (f *fakeAuctionStore) Refund(_ context.Context, id, bidder string) (uint64, error) {
	amount, ok := f.refunds[id+"/"+bidder]
	if !ok {
		return 0, domain.ErrNoOrderFound
	}
	delete(f.refunds, id+"/"+bidder)
	return amount, nil
}

type fakeOrderStore struct {
	orders map[string][]domain.Order
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: map[string][]domain.Order{}}
}

func (f *fakeOrderStore) Append(_ context.Context, o domain.Order) (domain.Order, error) {
	o.Seq = int64(len(f.orders[o.AuctionID]) + 1)
	f.orders[o.AuctionID] = append(f.orders[o.AuctionID], o)
	return o, nil
}

func (f *fakeOrderStore) ListByAuction(_ context.Context, auctionID string) ([]domain.Order, error) {
	return f.orders[auctionID], nil
}

func (f *fakeOrderStore) ListByBidder(_ context.Context, auctionID, bidder string) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range f.orders[auctionID] {
		if o.Bidder == bidder {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeLedger struct {
	balances map[string]uint64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: map[string]uint64{}}
}

func (f *fakeLedger) Register(_ context.Context, account string) error {
	if _, ok := f.balances[account]; ok {
		return domain.ErrAlreadyExists
	}
	f.balances[account] = 0
	return nil
}

func (f *fakeLedger) IsRegistered(_ context.Context, account string) (bool, error) {
	_, ok := f.balances[account]
	return ok, nil
}

func (f *fakeLedger) BalanceOf(_ context.Context, account string) (uint64, error) {
	bal, ok := f.balances[account]
	if !ok {
		return 0, domain.ErrNotRegistered
	}
	return bal, nil
}

func (f *fakeLedger) Mint(_ context.Context, to string, quantity uint64) error {
	if _, ok := f.balances[to]; !ok {
		return domain.ErrNotRegistered
	}
	f.balances[to] += quantity
	return nil
}

func (f *fakeLedger) Transfer(_ context.Context, from, to string, quantity uint64) error {
	if f.balances[from] < quantity {
		return domain.ErrInsufficientFunds
	}
	f.balances[from] -= quantity
	f.balances[to] += quantity
	return nil
}

type fakePayoutStore struct {
	queued []domain.Payout
}

func (f *fakePayoutStore) Enqueue(_ context.Context, p domain.Payout) error {
	f.queued = append(f.queued, p)
	return nil
}

func (f *fakePayoutStore) ListPending(_ context.Context, _ int) ([]domain.Payout, error) {
	return f.queued, nil
}

func (f *fakePayoutStore) MarkSent(_ context.Context, _ string, _ time.Time) error {
	return nil
}

type fakeAuditStore struct {
	events []string
}

func (f *fakeAuditStore) Log(_ context.Context, event string, _ map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAuditStore) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeLimiter struct {
	deny bool
}

func (f *fakeLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	return !f.deny, nil
}

type fakeLocks struct {
	held     bool
	acquired []string
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.acquired = append(f.acquired, key)
	return func() {}, nil
}

type busEvent struct {
	channel string
	payload map[string]any
}

type fakeBus struct {
	published []busEvent
	streamed  []string
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	var m map[string]any
	_ = json.Unmarshal(payload, &m)
	f.published = append(f.published, busEvent{channel: channel, payload: m})
	return nil
}

func (f *fakeBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeBus) StreamAppend(_ context.Context, stream string, _ []byte) error {
	f.streamed = append(f.streamed, stream)
	return nil
}

type harness struct {
	svc     *AuctionService
	store   *fakeAuctionStore
	orders  *fakeOrderStore
	ledger  *fakeLedger
	payouts *fakePayoutStore
	audit   *fakeAuditStore
	limiter *fakeLimiter
	locks   *fakeLocks
	bus     *fakeBus
	clock   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   newFakeAuctionStore(),
		orders:  newFakeOrderStore(),
		ledger:  newFakeLedger(),
		payouts: &fakePayoutStore{},
		audit:   &fakeAuditStore{},
		limiter: &fakeLimiter{},
		locks:   &fakeLocks{},
		bus:     &fakeBus{},
		clock:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	cfg := config.Defaults().Auction
	cfg.RegistrationFee = 100
	h.svc = NewAuctionService(
		h.store, h.orders, h.ledger, h.payouts, h.audit,
		h.limiter, h.locks, h.bus, cfg,
		slog.New(slog.DiscardHandler),
	).WithClock(func() time.Time { return h.clock })
	return h
}

func (h *harness) addAuction(t *testing.T, supply, reserveTotal uint64) domain.Auction {
	t.Helper()
	a := domain.Auction{
		ID:           "a1",
		Organizer:    "org.test",
		Deadline:     h.clock.Add(time.Hour),
		Supply:       supply,
		ReserveTotal: reserveTotal,
		CreatedAt:    h.clock,
	}
	require.NoError(t, h.store.Create(context.Background(), a))
	require.NoError(t, h.ledger.Register(context.Background(), a.CustodyAccount()))
	require.NoError(t, h.ledger.Mint(context.Background(), a.CustodyAccount(), supply))
	return a
}

func TestCreateAuctionMintsSupplyIntoCustody(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.svc.CreateAuction(ctx, CreateAuctionParams{
		Organizer:    "org.test",
		Deadline:     h.clock.Add(time.Hour),
		Supply:       100,
		ReserveTotal: 50,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)

	bal, err := h.ledger.BalanceOf(ctx, a.CustodyAccount())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal)
	assert.Contains(t, h.audit.events, "auction_created")
}

func TestCreateAuctionRejectsPastDeadline(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.CreateAuction(context.Background(), CreateAuctionParams{
		Organizer: "org.test",
		Deadline:  h.clock.Add(-time.Minute),
		Supply:    100,
	})
	assert.ErrorIs(t, err, domain.ErrBiddingClosed)
}

func TestRegisterBidderReturnsExcessDeposit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	back, err := h.svc.RegisterBidder(ctx, "a1", "alice.test", 150)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), back)

	registered, err := h.ledger.IsRegistered(ctx, "alice.test")
	require.NoError(t, err)
	assert.True(t, registered)

	require.Len(t, h.payouts.queued, 1)
	assert.Equal(t, uint64(50), h.payouts.queued[0].Amount)
	assert.Equal(t, "deposit_change", h.payouts.queued[0].Reason)
}

func TestRegisterBidderAlreadyRegisteredReturnsWholeDeposit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.ledger.Register(ctx, "alice.test"))

	back, err := h.svc.RegisterBidder(ctx, "a1", "alice.test", 150)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), back)
	require.Len(t, h.payouts.queued, 1)
	assert.Equal(t, uint64(150), h.payouts.queued[0].Amount)
}

func TestRegisterBidderRejectsShortDeposit(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.RegisterBidder(context.Background(), "a1", "alice.test", 99)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Empty(t, h.payouts.queued)
}

func TestSubmitOrderAppendsAndPublishes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addAuction(t, 100, 100)
	require.NoError(t, h.ledger.Register(ctx, "alice.test"))

	o, err := h.svc.SubmitOrder(ctx, "a1", "alice.test", 10, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), o.Seq)

	require.Len(t, h.bus.published, 1)
	assert.Equal(t, ChannelOrders, h.bus.published[0].channel)
	assert.Equal(t, "order_submitted", h.bus.published[0].payload["event"])
	assert.Contains(t, h.audit.events, "order_submitted")
}

func TestSubmitOrderRejectsUnregisteredBidder(t *testing.T) {
	h := newHarness(t)
	h.addAuction(t, 100, 100)

	_, err := h.svc.SubmitOrder(context.Background(), "a1", "ghost.test", 10, 20)
	assert.ErrorIs(t, err, domain.ErrNotRegistered)
}

func TestSubmitOrderRateLimited(t *testing.T) {
	h := newHarness(t)
	h.addAuction(t, 100, 100)
	h.limiter.deny = true

	_, err := h.svc.SubmitOrder(context.Background(), "a1", "alice.test", 10, 20)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestSubmitOrderAfterDeadline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addAuction(t, 100, 100)
	require.NoError(t, h.ledger.Register(ctx, "alice.test"))
	h.clock = h.clock.Add(2 * time.Hour)

	_, err := h.svc.SubmitOrder(ctx, "a1", "alice.test", 10, 20)
	assert.ErrorIs(t, err, domain.ErrBiddingClosed)
}

func TestSettleCommitsWinnersAndPrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addAuction(t, 100, 100)
	for _, b := range []string{"x.test", "y.test", "z.test"} {
		require.NoError(t, h.ledger.Register(ctx, b))
	}

	// Uniform-price outcome: x fills 60 at price 1, y is prorated to the
	// remaining 40, z misses out.
	_, err := h.svc.SubmitOrder(ctx, "a1", "x.test", 60, 70)
	require.NoError(t, err)
	_, err = h.svc.SubmitOrder(ctx, "a1", "y.test", 50, 55)
	require.NoError(t, err)
	_, err = h.svc.SubmitOrder(ctx, "a1", "z.test", 30, 30)
	require.NoError(t, err)

	h.clock = h.clock.Add(2 * time.Hour)
	a, winners, err := h.svc.Settle(ctx, "a1")
	require.NoError(t, err)

	assert.True(t, a.Settled)
	assert.Equal(t, uint64(1), a.ClearingPrice)
	require.Len(t, winners, 2)
	assert.Equal(t, "x.test", winners[0].Order.Bidder)
	assert.Equal(t, uint64(40), winners[1].Order.Quantity)
	assert.True(t, winners[1].Partial)

	assert.Equal(t, []string{"settle:a1"}, h.locks.acquired)
	assert.Contains(t, h.audit.events, "auction_settled")

	stored, err := h.store.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stored.ClearingPrice)
}

func TestSettleWhileLockHeld(t *testing.T) {
	h := newHarness(t)
	h.addAuction(t, 100, 100)
	h.locks.held = true
	h.clock = h.clock.Add(2 * time.Hour)

	_, _, err := h.svc.Settle(context.Background(), "a1")
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestSettleBeforeDeadline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addAuction(t, 100, 100)
	require.NoError(t, h.ledger.Register(ctx, "alice.test"))
	_, err := h.svc.SubmitOrder(ctx, "a1", "alice.test", 10, 20)
	require.NoError(t, err)

	_, _, err = h.svc.Settle(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrBiddingOpen)
}

func TestSettleWithNoOrders(t *testing.T) {
	h := newHarness(t)
	h.addAuction(t, 100, 100)
	h.clock = h.clock.Add(2 * time.Hour)

	_, _, err := h.svc.Settle(context.Background(), "a1")
	assert.ErrorIs(t, err, domain.ErrNoOrders)
}

func TestClaimPublishesPayoutEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.claims["a1/x.test"] = domain.ClaimResult{Position: 0, Quantity: 60, Refund: 10}

	res, err := h.svc.Claim(ctx, "a1", "x.test")
	require.NoError(t, err)
	assert.Equal(t, uint64(60), res.Quantity)
	assert.Equal(t, uint64(10), res.Refund)

	require.Len(t, h.bus.published, 1)
	assert.Equal(t, ChannelPayouts, h.bus.published[0].channel)
	assert.Equal(t, "entry_claimed", h.bus.published[0].payload["event"])

	_, err = h.svc.Claim(ctx, "a1", "x.test")
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestRefundDeposit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.refunds["a1/z.test"] = 30

	amount, err := h.svc.RefundDeposit(ctx, "a1", "z.test")
	require.NoError(t, err)
	assert.Equal(t, uint64(30), amount)
	assert.Contains(t, h.audit.events, "deposit_refunded")
}

func TestWinnersBeforeSettlement(t *testing.T) {
	h := newHarness(t)
	h.addAuction(t, 100, 100)

	_, err := h.svc.Winners(context.Background(), "a1")
	assert.ErrorIs(t, err, domain.ErrNotSettled)

	_, err = h.svc.ClearingPrice(context.Background(), "a1")
	assert.ErrorIs(t, err, domain.ErrNotSettled)
}
