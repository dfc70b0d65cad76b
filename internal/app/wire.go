package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/batchauction/auctiond/internal/blob/s3"
	"github.com/batchauction/auctiond/internal/cache/redis"
	"github.com/batchauction/auctiond/internal/config"
	"github.com/batchauction/auctiond/internal/domain"
	"github.com/batchauction/auctiond/internal/notify"
	"github.com/batchauction/auctiond/internal/store/postgres"
)

// Dependencies bundles every concrete implementation the modes need. Wire
// builds it; the returned cleanup releases resources in reverse order.
type Dependencies struct {
	AuctionStore domain.AuctionStore
	OrderStore   domain.OrderStore
	Ledger       domain.AssetLedger
	PayoutStore  domain.PayoutStore
	AuditStore   domain.AuditStore

	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	ArchiveWriter *s3blob.Writer

	Notifier *notify.Notifier

	Postgres *postgres.Client
	Redis    *redis.Client
}

func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	pg, err := postgres.NewClient(ctx, cfg.Postgres, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, func() { _ = pg.Close() })

	deps.Postgres = pg
	deps.AuctionStore = postgres.NewAuctionStore(pg, logger)
	deps.OrderStore = postgres.NewOrderStore(pg, logger)
	deps.Ledger = postgres.NewLedgerStore(pg, logger)
	deps.PayoutStore = postgres.NewPayoutStore(pg, logger)
	deps.AuditStore = postgres.NewAuditStore(pg, logger)

	rd, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = rd.Close() })

	deps.Redis = rd
	deps.RateLimiter = redis.NewRateLimiter(rd)
	deps.LockManager = redis.NewLockManager(rd)
	deps.SignalBus = redis.NewSignalBus(rd)

	if cfg.Archive.Enabled {
		s3c, err := s3blob.NewClient(ctx, cfg.Archive)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.ArchiveWriter = s3blob.NewWriter(s3c)
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
