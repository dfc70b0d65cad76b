package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/batchauction/auctiond/internal/domain"
)

// PayoutStore implements domain.PayoutStore, the outbox consumed by the
// payout dispatcher. Claim and Refund enqueue rows through enqueuePayoutTx in
// the same transaction that commits the entitlement change.
type PayoutStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPayoutStore(client *Client, logger *slog.Logger) *PayoutStore {
	return &PayoutStore{pool: client.Pool, logger: logger}
}

func (s *PayoutStore) Enqueue(ctx context.Context, p domain.Payout) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin enqueue payout: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := enqueuePayoutTx(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PayoutStore) ListPending(ctx context.Context, limit int) ([]domain.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, auction_id, account, amount::text, reason, created_at, sent_at
		FROM payouts
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending payouts: %w", err)
	}
	defer rows.Close()

	var out []domain.Payout
	for rows.Next() {
		var (
			p         domain.Payout
			amountStr string
		)
		if err := rows.Scan(&p.ID, &p.AuctionID, &p.Account, &amountStr,
			&p.Reason, &p.CreatedAt, &p.SentAt); err != nil {
			return nil, fmt.Errorf("postgres: scan payout: %w", err)
		}
		if p.Amount, err = parseAmount(amountStr); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PayoutStore) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payouts SET sent_at = $2 WHERE id = $1 AND sent_at IS NULL`,
		id, sentAt)
	if err != nil {
		return fmt.Errorf("postgres: mark payout sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func enqueuePayoutTx(ctx context.Context, tx pgx.Tx, p domain.Payout) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payouts (id, auction_id, account, amount, reason)
		VALUES ($1, $2, $3, $4::numeric, $5)`,
		p.ID, p.AuctionID, p.Account, formatAmount(p.Amount), p.Reason)
	if err != nil {
		return fmt.Errorf("postgres: enqueue payout: %w", err)
	}
	return nil
}
