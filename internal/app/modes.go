package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/batchauction/auctiond/internal/blob/s3"
	"github.com/batchauction/auctiond/internal/payout"
	"github.com/batchauction/auctiond/internal/server"
	"github.com/batchauction/auctiond/internal/server/handler"
	"github.com/batchauction/auctiond/internal/server/ws"
	"github.com/batchauction/auctiond/internal/service"
)

// ServeMode runs the full daemon: HTTP API, websocket hub, payout
// dispatcher, and the event archiver when object storage is configured.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	svc := a.buildService(deps)

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	dispatcher := payout.NewDispatcher(
		deps.PayoutStore,
		payout.NewBusSender(deps.SignalBus, a.logger),
		a.cfg.Payout,
		a.logger,
	)
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	if deps.ArchiveWriter != nil {
		archiver := s3blob.NewEventArchiver(
			deps.SignalBus,
			deps.ArchiveWriter,
			[]string{service.ChannelAuctions, service.ChannelOrders, service.ChannelSettlements, service.ChannelPayouts},
			time.Minute,
			a.logger,
		)
		g.Go(func() error {
			return archiver.Run(ctx)
		})
	}

	srv := server.NewServer(a.cfg.Server, server.Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": deps.Postgres.Pool,
			"redis":    deps.Redis,
		}, a.logger),
		Auctions:   handler.NewAuctionHandler(svc, a.logger),
		Orders:     handler.NewOrderHandler(svc, a.logger),
		Settlement: handler.NewSettlementHandler(svc, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// DispatchMode runs only the payout dispatcher, for deployments that separate
// API serving from payment delivery.
func (a *App) DispatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting dispatch mode")

	dispatcher := payout.NewDispatcher(
		deps.PayoutStore,
		payout.NewBusSender(deps.SignalBus, a.logger),
		a.cfg.Payout,
		a.logger,
	)
	return dispatcher.Run(ctx)
}

func (a *App) buildService(deps *Dependencies) *service.AuctionService {
	svc := service.NewAuctionService(
		deps.AuctionStore,
		deps.OrderStore,
		deps.Ledger,
		deps.PayoutStore,
		deps.AuditStore,
		deps.RateLimiter,
		deps.LockManager,
		deps.SignalBus,
		a.cfg.Auction,
		a.logger,
	).WithNotifier(deps.Notifier)

	if deps.ArchiveWriter != nil {
		svc = svc.WithArchive(deps.ArchiveWriter)
	}
	return svc
}
