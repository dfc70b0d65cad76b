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

// LedgerStore implements domain.AssetLedger on the ledger_accounts table.
// Balances are guarded by a CHECK (balance >= 0) constraint; debits use a
// conditional UPDATE so an overdraft loses the race cleanly.
type LedgerStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewLedgerStore(client *Client, logger *slog.Logger) *LedgerStore {
	return &LedgerStore{pool: client.Pool, logger: logger}
}

func (s *LedgerStore) Register(ctx context.Context, account string) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_accounts (account) VALUES ($1)
		ON CONFLICT (account) DO NOTHING`, account)
	if err != nil {
		return fmt.Errorf("postgres: register account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (s *LedgerStore) IsRegistered(ctx context.Context, account string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_accounts WHERE account = $1)`, account).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check registration: %w", err)
	}
	return exists, nil
}

func (s *LedgerStore) BalanceOf(ctx context.Context, account string) (uint64, error) {
	var balStr string
	err := s.pool.QueryRow(ctx,
		`SELECT balance::text FROM ledger_accounts WHERE account = $1`, account).
		Scan(&balStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotRegistered
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: balance: %w", err)
	}
	return parseAmount(balStr)
}

func (s *LedgerStore) Mint(ctx context.Context, to string, quantity uint64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ledger_accounts SET balance = balance + $2::numeric
		WHERE account = $1`, to, formatAmount(quantity))
	if err != nil {
		return fmt.Errorf("postgres: mint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotRegistered
	}
	s.logger.Info("supply minted", slog.String("account", to), slog.Uint64("quantity", quantity))
	return nil
}

func (s *LedgerStore) Transfer(ctx context.Context, from, to string, quantity uint64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := transferTx(ctx, tx, from, to, quantity); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit transfer: %w", err)
	}
	return nil
}

// transferTx moves quantity from one account to another inside the caller's
// transaction. The debit is conditional on sufficient balance.
func transferTx(ctx context.Context, tx pgx.Tx, from, to string, quantity uint64) error {
	amount := formatAmount(quantity)

	tag, err := tx.Exec(ctx, `
		UPDATE ledger_accounts SET balance = balance - $2::numeric
		WHERE account = $1 AND balance >= $2::numeric`, from, amount)
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM ledger_accounts WHERE account = $1)`, from).
			Scan(&exists); err != nil {
			return fmt.Errorf("postgres: debit %s: %w", from, err)
		}
		if !exists {
			return domain.ErrNotRegistered
		}
		return domain.ErrInsufficientFunds
	}

	tag, err = tx.Exec(ctx, `
		UPDATE ledger_accounts SET balance = balance + $2::numeric
		WHERE account = $1`, to, amount)
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", to, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotRegistered
	}
	return nil
}
