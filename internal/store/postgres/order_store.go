package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/batchauction/auctiond/internal/domain"
)

// OrderStore implements domain.OrderStore. Sequence numbers are assigned
// inside the insert transaction while holding the auction row lock, so
// concurrent submissions get distinct, gapless positions.
type OrderStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewOrderStore(client *Client, logger *slog.Logger) *OrderStore {
	return &OrderStore{pool: client.Pool, logger: logger}
}

func (s *OrderStore) Append(ctx context.Context, order domain.Order) (domain.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: begin append order: %w", err)
	}
	defer tx.Rollback(ctx)

	var settled bool
	err = tx.QueryRow(ctx,
		`SELECT settled FROM auctions WHERE id = $1 FOR UPDATE`, order.AuctionID).
		Scan(&settled)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: append order: %w", err)
	}
	if settled {
		return domain.Order{}, domain.ErrAlreadySettled
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, auction_id, seq, bidder, quantity, payment, created_at)
		VALUES ($1, $2,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM orders WHERE auction_id = $2),
			$3, $4::numeric, $5::numeric, $6)
		RETURNING seq`,
		order.ID, order.AuctionID, order.Bidder,
		formatAmount(order.Quantity), formatAmount(order.Payment), order.CreatedAt).
		Scan(&order.Seq)
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: insert order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("postgres: commit append order: %w", err)
	}
	s.logger.Debug("order appended",
		slog.String("auction_id", order.AuctionID),
		slog.String("bidder", order.Bidder),
		slog.Int64("seq", order.Seq))
	return order, nil
}

func (s *OrderStore) ListByAuction(ctx context.Context, auctionID string) ([]domain.Order, error) {
	return s.list(ctx, `
		SELECT id, auction_id, seq, bidder, quantity::text, payment::text, created_at
		FROM orders WHERE auction_id = $1 ORDER BY seq`, auctionID)
}

func (s *OrderStore) ListByBidder(ctx context.Context, auctionID, bidder string) ([]domain.Order, error) {
	return s.list(ctx, `
		SELECT id, auction_id, seq, bidder, quantity::text, payment::text, created_at
		FROM orders WHERE auction_id = $1 AND bidder = $2 ORDER BY seq`, auctionID, bidder)
}

func (s *OrderStore) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var (
			o              domain.Order
			qtyStr, payStr string
		)
		if err := rows.Scan(&o.ID, &o.AuctionID, &o.Seq, &o.Bidder,
			&qtyStr, &payStr, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		if o.Quantity, err = parseAmount(qtyStr); err != nil {
			return nil, err
		}
		if o.Payment, err = parseAmount(payStr); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
