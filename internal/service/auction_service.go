// Package service orchestrates the auction lifecycle: creation, bidder
// registration, order submission, settlement, and the claim/refund phase.
// Business rules live in internal/auction; this layer wires them to storage,
// coordination, and event delivery.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/batchauction/auctiond/internal/auction"
	"github.com/batchauction/auctiond/internal/config"
	"github.com/batchauction/auctiond/internal/domain"
)

// Event channels on the signal bus.
const (
	ChannelAuctions    = "auctions"
	ChannelOrders      = "orders"
	ChannelSettlements = "settlements"
	ChannelPayouts     = "payouts"
)

// Notifier pushes operator-facing messages for notable events. Implementations
// must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, event, message string)
}

// AuctionService is the application core. One instance serves every hosted
// auction.
type AuctionService struct {
	auctions domain.AuctionStore
	orders   domain.OrderStore
	ledger   domain.AssetLedger
	payouts  domain.PayoutStore
	audit    domain.AuditStore
	limiter  domain.RateLimiter
	locks    domain.LockManager
	bus      domain.SignalBus
	archive  domain.BlobWriter
	notifier Notifier
	cfg      config.AuctionConfig
	now      func() time.Time
	logger   *slog.Logger
}

func NewAuctionService(
	auctions domain.AuctionStore,
	orders domain.OrderStore,
	ledger domain.AssetLedger,
	payouts domain.PayoutStore,
	audit domain.AuditStore,
	limiter domain.RateLimiter,
	locks domain.LockManager,
	bus domain.SignalBus,
	cfg config.AuctionConfig,
	logger *slog.Logger,
) *AuctionService {
	return &AuctionService{
		auctions: auctions,
		orders:   orders,
		ledger:   ledger,
		payouts:  payouts,
		audit:    audit,
		limiter:  limiter,
		locks:    locks,
		bus:      bus,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// WithArchive attaches blob storage for settlement snapshots. Without it,
// settlement skips archiving.
func (s *AuctionService) WithArchive(w domain.BlobWriter) *AuctionService {
	s.archive = w
	return s
}

// WithNotifier attaches an operator notification channel.
func (s *AuctionService) WithNotifier(n Notifier) *AuctionService {
	s.notifier = n
	return s
}

// WithClock overrides the time source, used in tests.
func (s *AuctionService) WithClock(now func() time.Time) *AuctionService {
	s.now = now
	return s
}

// CreateAuctionParams carries the organizer-supplied auction parameters.
type CreateAuctionParams struct {
	Organizer    string
	Deadline     time.Time
	Supply       uint64
	ReserveTotal uint64
}

// CreateAuction records a new auction, registers its custody account, and
// mints the full supply into custody.
func (s *AuctionService) CreateAuction(ctx context.Context, p CreateAuctionParams) (domain.Auction, error) {
	if p.Organizer == "" {
		return domain.Auction{}, fmt.Errorf("auction_service: organizer must not be empty: %w", domain.ErrInvalidAmount)
	}
	if p.Supply == 0 {
		return domain.Auction{}, fmt.Errorf("auction_service: supply must be positive: %w", domain.ErrInvalidAmount)
	}
	now := s.now().UTC()
	if !p.Deadline.After(now) {
		return domain.Auction{}, fmt.Errorf("auction_service: deadline must be in the future: %w", domain.ErrBiddingClosed)
	}

	a := domain.Auction{
		ID:           uuid.New().String(),
		Organizer:    p.Organizer,
		Deadline:     p.Deadline.UTC(),
		Supply:       p.Supply,
		ReserveTotal: p.ReserveTotal,
		CreatedAt:    now,
	}
	if err := s.auctions.Create(ctx, a); err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: create auction: %w", err)
	}

	custody := a.CustodyAccount()
	if err := s.ledger.Register(ctx, custody); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		return domain.Auction{}, fmt.Errorf("auction_service: register custody: %w", err)
	}
	if err := s.ledger.Mint(ctx, custody, a.Supply); err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: mint supply: %w", err)
	}

	s.auditLog(ctx, "auction_created", map[string]any{
		"auction_id": a.ID,
		"organizer":  a.Organizer,
		"supply":     a.Supply,
		"deadline":   a.Deadline,
	})
	s.publish(ctx, ChannelAuctions, map[string]any{
		"event":      "auction_created",
		"auction_id": a.ID,
		"supply":     a.Supply,
		"deadline":   a.Deadline,
	})
	s.logger.InfoContext(ctx, "auction_service: auction created",
		slog.String("auction_id", a.ID),
		slog.String("organizer", a.Organizer),
		slog.Uint64("supply", a.Supply))
	return a, nil
}

// RegisterBidder registers an account on the asset ledger against a deposit.
// The deposit must cover the registration fee; the excess (or, for an account
// that was already registered, the whole deposit) is queued for return. It
// returns the amount queued.
func (s *AuctionService) RegisterBidder(ctx context.Context, auctionID, account string, deposit uint64) (uint64, error) {
	if account == "" {
		return 0, fmt.Errorf("auction_service: account must not be empty: %w", domain.ErrInvalidAmount)
	}
	if deposit < s.cfg.RegistrationFee {
		return 0, fmt.Errorf("auction_service: deposit %d below registration fee %d: %w",
			deposit, s.cfg.RegistrationFee, domain.ErrInvalidAmount)
	}

	back := deposit - s.cfg.RegistrationFee
	err := s.ledger.Register(ctx, account)
	if errors.Is(err, domain.ErrAlreadyExists) {
		back = deposit
	} else if err != nil {
		return 0, fmt.Errorf("auction_service: register bidder: %w", err)
	}

	if back > 0 {
		if err := s.payouts.Enqueue(ctx, domain.Payout{
			ID:        uuid.New().String(),
			AuctionID: auctionID,
			Account:   account,
			Amount:    back,
			Reason:    "deposit_change",
		}); err != nil {
			return 0, fmt.Errorf("auction_service: enqueue deposit change: %w", err)
		}
	}

	s.auditLog(ctx, "bidder_registered", map[string]any{
		"auction_id": auctionID,
		"account":    account,
		"deposit":    deposit,
		"returned":   back,
	})
	return back, nil
}

// SubmitOrder appends one sealed order to the auction's ledger. Orders are
// never amended or cancelled; a bidder raises their bid by submitting again.
func (s *AuctionService) SubmitOrder(ctx context.Context, auctionID, bidder string, quantity, payment uint64) (domain.Order, error) {
	allowed, err := s.limiter.Allow(ctx, "submit:"+bidder, s.cfg.SubmitRateLimit, s.cfg.SubmitRateWindow.Duration)
	if err != nil {
		return domain.Order{}, fmt.Errorf("auction_service: rate limiter: %w", err)
	}
	if !allowed {
		return domain.Order{}, domain.ErrRateLimited
	}

	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("auction_service: load auction: %w", err)
	}
	registered, err := s.ledger.IsRegistered(ctx, bidder)
	if err != nil {
		return domain.Order{}, fmt.Errorf("auction_service: check registration: %w", err)
	}
	if err := auction.ValidateSubmit(a, registered, s.now(), quantity, payment); err != nil {
		return domain.Order{}, err
	}

	order, err := s.orders.Append(ctx, domain.Order{
		ID:        uuid.New().String(),
		AuctionID: auctionID,
		Bidder:    bidder,
		Quantity:  quantity,
		Payment:   payment,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("auction_service: append order: %w", err)
	}

	s.publish(ctx, ChannelOrders, map[string]any{
		"event":      "order_submitted",
		"auction_id": auctionID,
		"order_id":   order.ID,
		"seq":        order.Seq,
		"quantity":   order.Quantity,
		"payment":    order.Payment,
	})
	s.auditLog(ctx, "order_submitted", map[string]any{
		"auction_id": auctionID,
		"order_id":   order.ID,
		"bidder":     bidder,
		"seq":        order.Seq,
		"quantity":   quantity,
		"payment":    payment,
	})
	s.logger.InfoContext(ctx, "auction_service: order submitted",
		slog.String("auction_id", auctionID),
		slog.String("bidder", bidder),
		slog.Int64("seq", order.Seq),
		slog.Uint64("quantity", quantity),
		slog.Uint64("payment", payment))
	return order, nil
}

// Settle runs the clearing engine over the full order ledger and commits the
// winner set and clearing price. Anyone may trigger it once the deadline has
// passed. The distributed lock keeps concurrent triggers from doing redundant
// work; the store's conditional update guarantees at most one commit.
func (s *AuctionService) Settle(ctx context.Context, auctionID string) (domain.Auction, []domain.WinnerEntry, error) {
	unlock, err := s.locks.Acquire(ctx, "settle:"+auctionID, s.cfg.SettleLockTTL.Duration)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return domain.Auction{}, nil, domain.ErrLockHeld
		}
		return domain.Auction{}, nil, fmt.Errorf("auction_service: settle lock: %w", err)
	}
	defer unlock()

	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, nil, fmt.Errorf("auction_service: load auction: %w", err)
	}
	if err := auction.CanSettle(a, s.now()); err != nil {
		return domain.Auction{}, nil, err
	}

	orders, err := s.orders.ListByAuction(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, nil, fmt.Errorf("auction_service: load orders: %w", err)
	}

	winners, price, err := auction.Clear(a, orders, s.now())
	if err != nil {
		return domain.Auction{}, nil, err
	}

	settledAt := s.now().UTC()
	if err := s.auctions.Settle(ctx, auctionID, winners, price, settledAt); err != nil {
		return domain.Auction{}, nil, fmt.Errorf("auction_service: commit settlement: %w", err)
	}

	a.Settled = true
	a.ClearingPrice = price
	a.SettledAt = &settledAt

	s.publish(ctx, ChannelSettlements, map[string]any{
		"event":          "auction_settled",
		"auction_id":     auctionID,
		"clearing_price": price,
		"winners":        len(winners),
	})
	s.auditLog(ctx, "auction_settled", map[string]any{
		"auction_id":     auctionID,
		"clearing_price": price,
		"winners":        len(winners),
		"orders":         len(orders),
	})
	if s.notifier != nil {
		s.notifier.Notify(ctx, "auction_settled",
			fmt.Sprintf("auction %s settled: %d winners, clearing price %d", auctionID, len(winners), price))
	}
	if s.archive != nil {
		if err := s.archiveSettlement(ctx, a, orders, winners); err != nil {
			s.logger.WarnContext(ctx, "auction_service: archive settlement failed",
				slog.String("auction_id", auctionID),
				slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "auction_service: auction settled",
		slog.String("auction_id", auctionID),
		slog.Uint64("clearing_price", price),
		slog.Int("winners", len(winners)))
	return a, winners, nil
}

// Claim hands the bidder their next unclaimed winning entry: units move from
// custody to the bidder and any overpayment is queued for return. Bidders
// with several winning orders call it repeatedly.
func (s *AuctionService) Claim(ctx context.Context, auctionID, bidder string) (domain.ClaimResult, error) {
	res, err := s.auctions.Claim(ctx, auctionID, bidder)
	if err != nil {
		return domain.ClaimResult{}, err
	}

	s.publish(ctx, ChannelPayouts, map[string]any{
		"event":      "entry_claimed",
		"auction_id": auctionID,
		"bidder":     bidder,
		"position":   res.Position,
		"quantity":   res.Quantity,
		"refund":     res.Refund,
	})
	s.auditLog(ctx, "entry_claimed", map[string]any{
		"auction_id": auctionID,
		"bidder":     bidder,
		"position":   res.Position,
		"quantity":   res.Quantity,
		"refund":     res.Refund,
	})
	return res, nil
}

// RefundDeposit returns a losing bidder's first-order payment. One refund per
// bidder per auction.
func (s *AuctionService) RefundDeposit(ctx context.Context, auctionID, bidder string) (uint64, error) {
	amount, err := s.auctions.Refund(ctx, auctionID, bidder)
	if err != nil {
		return 0, err
	}

	s.publish(ctx, ChannelPayouts, map[string]any{
		"event":      "deposit_refunded",
		"auction_id": auctionID,
		"bidder":     bidder,
		"amount":     amount,
	})
	s.auditLog(ctx, "deposit_refunded", map[string]any{
		"auction_id": auctionID,
		"bidder":     bidder,
		"amount":     amount,
	})
	return amount, nil
}

func (s *AuctionService) GetAuction(ctx context.Context, id string) (domain.Auction, error) {
	return s.auctions.GetByID(ctx, id)
}

func (s *AuctionService) ListAuctions(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	return s.auctions.List(ctx, opts)
}

func (s *AuctionService) ListOrders(ctx context.Context, auctionID string) ([]domain.Order, error) {
	return s.orders.ListByAuction(ctx, auctionID)
}

// Winners returns the settled winner set in position order, or ErrNotSettled
// before settlement.
func (s *AuctionService) Winners(ctx context.Context, auctionID string) ([]domain.WinnerEntry, error) {
	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if !a.Settled {
		return nil, domain.ErrNotSettled
	}
	return s.auctions.Winners(ctx, auctionID)
}

// ClearingPrice returns the committed uniform price, or ErrNotSettled.
func (s *AuctionService) ClearingPrice(ctx context.Context, auctionID string) (uint64, error) {
	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return 0, err
	}
	if !a.Settled {
		return 0, domain.ErrNotSettled
	}
	return a.ClearingPrice, nil
}

// BalanceOf reports an account's sale-asset balance.
func (s *AuctionService) BalanceOf(ctx context.Context, account string) (uint64, error) {
	return s.ledger.BalanceOf(ctx, account)
}

// archiveSettlement writes the full order ledger and winner set as JSONL to
// blob storage, one immutable snapshot per settlement.
func (s *AuctionService) archiveSettlement(ctx context.Context, a domain.Auction, orders []domain.Order, winners []domain.WinnerEntry) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	if err := enc.Encode(a); err != nil {
		return fmt.Errorf("auction_service: encode auction: %w", err)
	}
	for _, o := range orders {
		if err := enc.Encode(o); err != nil {
			return fmt.Errorf("auction_service: encode order: %w", err)
		}
	}
	for _, w := range winners {
		if err := enc.Encode(w); err != nil {
			return fmt.Errorf("auction_service: encode winner: %w", err)
		}
	}

	path := fmt.Sprintf("auctions/%s/settlement-%s.jsonl", a.ID, s.now().UTC().Format("20060102T150405Z"))
	return s.archive.Put(ctx, path, &buf, "application/x-ndjson")
}

// publish sends a bus event and mirrors it onto the durable stream of the
// same name. Failures are logged, never surfaced; events fire after the
// commit and must not undo it.
func (s *AuctionService) publish(ctx context.Context, channel string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WarnContext(ctx, "auction_service: marshal event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, channel, data); err != nil {
		s.logger.WarnContext(ctx, "auction_service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
	}
	if err := s.bus.StreamAppend(ctx, "stream:"+channel, data); err != nil {
		s.logger.WarnContext(ctx, "auction_service: stream append failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
	}
}

func (s *AuctionService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "auction_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}
