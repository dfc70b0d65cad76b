package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/batchauction/auctiond/internal/domain"
)

// AuditStore implements domain.AuditStore on the append-only audit_log table.
type AuditStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewAuditStore(client *Client, logger *slog.Logger) *AuditStore {
	return &AuditStore{pool: client.Pool, logger: logger}
}

func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (event, detail) VALUES ($1, $2::jsonb)`,
		event, payload); err != nil {
		return fmt.Errorf("postgres: write audit entry: %w", err)
	}
	return nil
}

func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, event, detail, created_at
		FROM audit_log ORDER BY id DESC LIMIT $1 OFFSET $2`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e   domain.AuditEntry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.Event, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		if err := json.Unmarshal(raw, &e.Detail); err != nil {
			return nil, fmt.Errorf("postgres: decode audit detail: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
