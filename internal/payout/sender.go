package payout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/batchauction/auctiond/internal/domain"
)

// BusSender implements domain.PaymentSender by publishing payment
// instructions on the signal bus for the external payment rail to execute.
// The durable stream copy is the handoff record.
type BusSender struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

func NewBusSender(bus domain.SignalBus, logger *slog.Logger) *BusSender {
	return &BusSender{bus: bus, logger: logger}
}

func (s *BusSender) Pay(ctx context.Context, to string, amount uint64, reason string) error {
	msg, err := json.Marshal(map[string]any{
		"event":   "payment_instruction",
		"account": to,
		"amount":  amount,
		"reason":  reason,
	})
	if err != nil {
		return fmt.Errorf("payout: marshal payment instruction: %w", err)
	}

	if err := s.bus.StreamAppend(ctx, "stream:payments", msg); err != nil {
		return fmt.Errorf("payout: record payment instruction: %w", err)
	}
	if err := s.bus.Publish(ctx, "payments", msg); err != nil {
		s.logger.WarnContext(ctx, "payout: live payment event dropped",
			slog.String("account", to),
			slog.String("error", err.Error()))
	}
	return nil
}

var _ domain.PaymentSender = (*BusSender)(nil)
