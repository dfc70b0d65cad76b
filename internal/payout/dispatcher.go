// Package payout drains the payout outbox. Claim and refund transactions
// enqueue rows; the dispatcher delivers them afterwards, so a failed delivery
// retries without ever reopening the entitlement that produced it.
package payout

import (
	"context"
	"log/slog"
	"time"

	"github.com/batchauction/auctiond/internal/config"
	"github.com/batchauction/auctiond/internal/domain"
)

// Dispatcher polls the outbox and hands pending payouts to the sender.
type Dispatcher struct {
	store  domain.PayoutStore
	sender domain.PaymentSender
	cfg    config.PayoutConfig
	logger *slog.Logger
}

func NewDispatcher(store domain.PayoutStore, sender domain.PaymentSender, cfg config.PayoutConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: store, sender: sender, cfg: cfg, logger: logger}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval.Duration)
	defer ticker.Stop()

	d.logger.Info("payout dispatcher started",
		slog.Duration("poll_interval", d.cfg.PollInterval.Duration),
		slog.Int("batch_size", d.cfg.BatchSize))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("payout dispatcher stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := d.dispatchOnce(ctx); err != nil {
				d.logger.ErrorContext(ctx, "payout: dispatch round failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

// dispatchOnce sends one batch. A payout that fails to send stays pending and
// is retried next round; MarkSent failures after a successful send are logged
// loudly since they can cause a duplicate delivery.
func (d *Dispatcher) dispatchOnce(ctx context.Context) error {
	pending, err := d.store.ListPending(ctx, d.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, p := range pending {
		if err := d.sender.Pay(ctx, p.Account, p.Amount, p.Reason); err != nil {
			d.logger.WarnContext(ctx, "payout: send failed, will retry",
				slog.String("payout_id", p.ID),
				slog.String("account", p.Account),
				slog.Uint64("amount", p.Amount),
				slog.String("error", err.Error()))
			continue
		}
		if err := d.store.MarkSent(ctx, p.ID, time.Now().UTC()); err != nil {
			d.logger.ErrorContext(ctx, "payout: sent but not marked, manual check needed",
				slog.String("payout_id", p.ID),
				slog.String("error", err.Error()))
			continue
		}
		d.logger.InfoContext(ctx, "payout: sent",
			slog.String("payout_id", p.ID),
			slog.String("account", p.Account),
			slog.Uint64("amount", p.Amount),
			slog.String("reason", p.Reason))
	}
	return nil
}
