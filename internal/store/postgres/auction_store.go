package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/batchauction/auctiond/internal/auction"
	"github.com/batchauction/auctiond/internal/domain"
)

// AuctionStore implements domain.AuctionStore on PostgreSQL. Settle, Claim,
// and Refund run inside single transactions with conditional writes, so a
// concurrent duplicate loses the race instead of double-spending.
type AuctionStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewAuctionStore(client *Client, logger *slog.Logger) *AuctionStore {
	return &AuctionStore{pool: client.Pool, logger: logger}
}

func (s *AuctionStore) Create(ctx context.Context, a domain.Auction) error {
	query := `
		INSERT INTO auctions (id, organizer, deadline, supply, reserve_total, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6)
		ON CONFLICT (id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		a.ID, a.Organizer, a.Deadline,
		formatAmount(a.Supply), formatAmount(a.ReserveTotal), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// clearing_price is NULL until settlement; COALESCE keeps the text scan total.
const auctionColumns = `
	id, organizer, deadline, supply::text, reserve_total::text,
	settled, COALESCE(clearing_price::text, '0'), created_at, settled_at`

func (s *AuctionStore) GetByID(ctx context.Context, id string) (domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`

	a, err := scanAuction(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Auction{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: get auction: %w", err)
	}
	return a, nil
}

func (s *AuctionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	query := `SELECT ` + auctionColumns + `
		FROM auctions ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list auctions: %w", err)
	}
	defer rows.Close()

	var out []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list auctions: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *AuctionStore) Settle(ctx context.Context, id string, winners []domain.WinnerEntry, clearingPrice uint64, settledAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin settle: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE auctions
		SET settled = TRUE, clearing_price = $2::numeric, settled_at = $3
		WHERE id = $1 AND settled = FALSE`,
		id, formatAmount(clearingPrice), settledAt)
	if err != nil {
		return fmt.Errorf("postgres: settle auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM auctions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: settle auction: %w", err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadySettled
	}

	batch := &pgx.Batch{}
	for _, w := range winners {
		batch.Queue(`
			INSERT INTO auction_winners (auction_id, position, order_id, bidder, quantity, payment, partial)
			VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7)`,
			id, w.Position, w.Order.ID, w.Order.Bidder,
			formatAmount(w.Order.Quantity), formatAmount(w.Order.Payment), w.Partial)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: insert winners: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit settle: %w", err)
	}
	s.logger.Info("auction settled",
		slog.String("auction_id", id),
		slog.Int("winners", len(winners)),
		slog.Uint64("clearing_price", clearingPrice))
	return nil
}

func (s *AuctionStore) Winners(ctx context.Context, id string) ([]domain.WinnerEntry, error) {
	query := `
		SELECT w.position, w.order_id, w.bidder, w.quantity::text, w.payment::text,
		       w.partial, w.claimed, o.seq, o.created_at
		FROM auction_winners w
		JOIN orders o ON o.id = w.order_id
		WHERE w.auction_id = $1
		ORDER BY w.position`

	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: list winners: %w", err)
	}
	defer rows.Close()

	var out []domain.WinnerEntry
	for rows.Next() {
		var (
			w              domain.WinnerEntry
			qtyStr, payStr string
		)
		w.Order.AuctionID = id
		if err := rows.Scan(&w.Position, &w.Order.ID, &w.Order.Bidder,
			&qtyStr, &payStr, &w.Partial, &w.Claimed,
			&w.Order.Seq, &w.Order.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan winner: %w", err)
		}
		if w.Order.Quantity, err = parseAmount(qtyStr); err != nil {
			return nil, err
		}
		if w.Order.Payment, err = parseAmount(payStr); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *AuctionStore) Claim(ctx context.Context, id, bidder string) (domain.ClaimResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.ClaimResult{}, fmt.Errorf("postgres: begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	var a domain.Auction
	a.ID = id
	var priceStr string
	err = tx.QueryRow(ctx,
		`SELECT settled, COALESCE(clearing_price::text, '0') FROM auctions WHERE id = $1`, id).
		Scan(&a.Settled, &priceStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ClaimResult{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ClaimResult{}, fmt.Errorf("postgres: claim: %w", err)
	}
	if a.ClearingPrice, err = parseAmount(priceStr); err != nil {
		return domain.ClaimResult{}, err
	}

	// Lock the bidder's winner rows and let the pure claim rule pick the
	// entry, so concurrent claims for the same bidder serialize here.
	rows, err := tx.Query(ctx, `
		SELECT position, quantity::text, payment::text, claimed
		FROM auction_winners
		WHERE auction_id = $1 AND bidder = $2
		ORDER BY position
		FOR UPDATE`, id, bidder)
	if err != nil {
		return domain.ClaimResult{}, fmt.Errorf("postgres: claim: %w", err)
	}
	var winners []domain.WinnerEntry
	for rows.Next() {
		var (
			w              domain.WinnerEntry
			qtyStr, payStr string
		)
		w.Order.Bidder = bidder
		if err := rows.Scan(&w.Position, &qtyStr, &payStr, &w.Claimed); err != nil {
			rows.Close()
			return domain.ClaimResult{}, fmt.Errorf("postgres: claim: %w", err)
		}
		if w.Order.Quantity, err = parseAmount(qtyStr); err != nil {
			rows.Close()
			return domain.ClaimResult{}, err
		}
		if w.Order.Payment, err = parseAmount(payStr); err != nil {
			rows.Close()
			return domain.ClaimResult{}, err
		}
		winners = append(winners, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.ClaimResult{}, fmt.Errorf("postgres: claim: %w", err)
	}

	res, err := auction.NextClaim(a, winners, bidder)
	if err != nil {
		return domain.ClaimResult{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE auction_winners SET claimed = TRUE, claimed_at = NOW()
		WHERE auction_id = $1 AND position = $2`, id, res.Position); err != nil {
		return domain.ClaimResult{}, fmt.Errorf("postgres: mark claimed: %w", err)
	}

	if err := transferTx(ctx, tx, domain.CustodyAccountFor(id), bidder, res.Quantity); err != nil {
		return domain.ClaimResult{}, err
	}

	if res.Refund > 0 {
		if err := enqueuePayoutTx(ctx, tx, domain.Payout{
			ID:        uuid.New().String(),
			AuctionID: id,
			Account:   bidder,
			Amount:    res.Refund,
			Reason:    "claim_refund",
		}); err != nil {
			return domain.ClaimResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ClaimResult{}, fmt.Errorf("postgres: commit claim: %w", err)
	}
	s.logger.Info("entry claimed",
		slog.String("auction_id", id),
		slog.String("bidder", bidder),
		slog.Int("position", res.Position),
		slog.Uint64("quantity", res.Quantity),
		slog.Uint64("refund", res.Refund))
	return res, nil
}

func (s *AuctionStore) Refund(ctx context.Context, id, bidder string) (uint64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin refund: %w", err)
	}
	defer tx.Rollback(ctx)

	var a domain.Auction
	a.ID = id
	err = tx.QueryRow(ctx, `SELECT settled FROM auctions WHERE id = $1`, id).Scan(&a.Settled)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: refund: %w", err)
	}

	var orders []domain.Order
	var payStr string
	err = tx.QueryRow(ctx, `
		SELECT payment::text FROM orders
		WHERE auction_id = $1 AND bidder = $2
		ORDER BY seq
		LIMIT 1`, id, bidder).Scan(&payStr)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("postgres: refund: %w", err)
	}
	if err == nil {
		payment, err := parseAmount(payStr)
		if err != nil {
			return 0, err
		}
		orders = []domain.Order{{AuctionID: id, Bidder: bidder, Payment: payment}}
	}

	var won, refunded bool
	if err := tx.QueryRow(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM auction_winners WHERE auction_id = $1 AND bidder = $2),
			EXISTS (SELECT 1 FROM auction_refunds WHERE auction_id = $1 AND bidder = $2)`,
		id, bidder).Scan(&won, &refunded); err != nil {
		return 0, fmt.Errorf("postgres: refund: %w", err)
	}

	amount, err := auction.RefundAmount(a, orders, won, refunded)
	if err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO auction_refunds (auction_id, bidder, amount)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (auction_id, bidder) DO NOTHING`,
		id, bidder, formatAmount(amount))
	if err != nil {
		return 0, fmt.Errorf("postgres: record refund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return 0, domain.ErrAlreadyRefunded
	}

	if err := enqueuePayoutTx(ctx, tx, domain.Payout{
		ID:        uuid.New().String(),
		AuctionID: id,
		Account:   bidder,
		Amount:    amount,
		Reason:    "loser_refund",
	}); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit refund: %w", err)
	}
	s.logger.Info("deposit refunded",
		slog.String("auction_id", id),
		slog.String("bidder", bidder),
		slog.Uint64("amount", amount))
	return amount, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (domain.Auction, error) {
	var (
		a                               domain.Auction
		supplyStr, reserveStr, priceStr string
	)
	if err := row.Scan(&a.ID, &a.Organizer, &a.Deadline, &supplyStr, &reserveStr,
		&a.Settled, &priceStr, &a.CreatedAt, &a.SettledAt); err != nil {
		return domain.Auction{}, err
	}
	var err error
	if a.Supply, err = parseAmount(supplyStr); err != nil {
		return domain.Auction{}, err
	}
	if a.ReserveTotal, err = parseAmount(reserveStr); err != nil {
		return domain.Auction{}, err
	}
	if a.ClearingPrice, err = parseAmount(priceStr); err != nil {
		return domain.Auction{}, err
	}
	return a, nil
}
