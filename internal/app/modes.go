package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/outcomelab/tradeflow/internal/builder"
	"github.com/outcomelab/tradeflow/internal/domain"
	"github.com/outcomelab/tradeflow/internal/guard"
	"github.com/outcomelab/tradeflow/internal/minter"
	"github.com/outcomelab/tradeflow/internal/notify"
	"github.com/outcomelab/tradeflow/internal/server"
	"github.com/outcomelab/tradeflow/internal/server/handler"
	"github.com/outcomelab/tradeflow/internal/server/ws"
	"github.com/outcomelab/tradeflow/internal/service"
	"github.com/outcomelab/tradeflow/internal/settlement"
	"github.com/outcomelab/tradeflow/internal/wallet"
)

// archiveInterval is how often the archiver sweeps settled history to object
// storage. archiveRetention is how far back the hot store keeps rows before
// they become archive candidates.
const (
	archiveInterval  = 24 * time.Hour
	archiveRetention = 30 * 24 * time.Hour
)

// shutdownTimeout bounds graceful HTTP shutdown after the context ends.
const shutdownTimeout = 10 * time.Second

// TradeMode runs the full order lifecycle stack: affordability guard, order
// builder, dual signer, venue submission, and on-chain settlement, fronted by
// the HTTP API when enabled.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.String("account", deps.Chain.From().Hex()),
		slog.Int64("chain_id", deps.Chain.ChainID()),
	)

	g, ctx := errgroup.WithContext(ctx)

	b := builder.New(a.cfg.Chain.CollateralDecimals)
	grd := guard.New(deps.Chain, a.logger)
	mnt := minter.New(deps.Chain, deps.Chain.From().Hex(), a.logger)
	exec := settlement.NewExecutor(
		deps.Signer, deps.Chain, deps.Venue,
		deps.SettlementStore, deps.LockManager, a.logger,
	)

	trades := service.NewTradeService(
		b, grd, deps.Signer, deps.Venue, exec,
		deps.OrderStore, deps.SettlementStore,
		deps.RateLimiter, deps.SignalBus, deps.AuditStore,
		a.logger,
	)
	mints := service.NewMintService(mnt, deps.SignalBus, deps.AuditStore, a.logger)

	// Announce the signing context so subscribers start from known state.
	session := wallet.NewSessionWatcher(deps.Signer.Session(), deps.SignalBus, a.logger)
	if err := session.Announce(ctx); err != nil {
		a.logger.WarnContext(ctx, "session announce failed", slog.String("error", err.Error()))
	}

	a.startNotifyWatcher(ctx, g, deps)

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, trades, mints)
	}

	return g.Wait()
}

// MonitorMode watches the event channels and forwards notifications without
// touching the database or the chain. The HTTP server, when enabled, serves
// only health and the WebSocket event stream.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startNotifyWatcher(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, nil, nil)
	}

	return g.Wait()
}

// ServerMode serves the HTTP API without a wallet. Orders and settlements are
// readable; the mutating endpoints reject with an authorization error since
// no signing key is loaded.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startNotifyWatcher(ctx, g, deps)

	trades := &readOnlyTrades{
		orders:  deps.OrderStore,
		settles: deps.SettlementStore,
	}
	a.startHTTPServer(ctx, g, deps, trades, nil)

	return g.Wait()
}

// startNotifyWatcher adds the notification forwarder goroutine when at least
// one sender is configured.
func (a *App) startNotifyWatcher(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !deps.Notifier.HasSenders() {
		a.logger.InfoContext(ctx, "no notification senders configured")
		return
	}
	watcher := notify.NewWatcher(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		return watcher.Run(ctx, service.TradeChannel, service.MintChannel, wallet.SessionChannel)
	})
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines. trades
// and mints are optional; nil leaves the corresponding routes unregistered.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	trades handler.TradeAPI,
	mints handler.MintAPI,
) {
	hub := ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Pingers, a.logger),
	}
	if trades != nil {
		handlers.Trades = handler.NewTradeHandler(trades, a.logger)
	}
	if mints != nil {
		handlers.Mints = handler.NewMintHandler(mints, a.logger)
	}
	if deps.Chain != nil && deps.Signer != nil {
		handlers.Balances = handler.NewBalanceHandler(deps.Chain, deps.Signer, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	})
}

// runArchiver sweeps old settlements and audit rows to object storage once at
// startup and then on a fixed interval.
func (a *App) runArchiver(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(archiveInterval)
	defer ticker.Stop()

	for {
		cutoff := time.Now().UTC().Add(-archiveRetention)
		if n, err := deps.Archiver.ArchiveSettlements(ctx, cutoff); err != nil {
			a.logger.WarnContext(ctx, "settlement archive sweep failed", slog.String("error", err.Error()))
		} else if n > 0 {
			a.logger.InfoContext(ctx, "settlements archived", slog.Int64("count", n))
		}
		if n, err := deps.Archiver.ArchiveAuditLog(ctx, cutoff); err != nil {
			a.logger.WarnContext(ctx, "audit archive sweep failed", slog.String("error", err.Error()))
		} else if n > 0 {
			a.logger.InfoContext(ctx, "audit rows archived", slog.Int64("count", n))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// readOnlyTrades serves the order and settlement read paths straight from the
// stores. Execution requires a wallet, which server mode does not load.
type readOnlyTrades struct {
	orders  domain.OrderStore
	settles domain.SettlementStore
}

func (r *readOnlyTrades) ExecuteTrade(ctx context.Context, req service.TradeRequest) (service.TradeResult, error) {
	return service.TradeResult{}, fmt.Errorf("app: trade execution requires trade mode: %w", domain.ErrUnauthorized)
}

func (r *readOnlyTrades) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return r.orders.GetByID(ctx, id)
}

// ListOrders returns orders still resting in the venue book. Without a
// wallet there is no account to scope the listing to.
func (r *readOnlyTrades) ListOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	return r.orders.ListByStatus(ctx, domain.OrderStatusResting, opts)
}

func (r *readOnlyTrades) ListSettlements(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	return r.settles.ListUnsettled(ctx, opts)
}

func (r *readOnlyTrades) RetrySettlement(ctx context.Context, settlementID string) (domain.Settlement, error) {
	return domain.Settlement{}, fmt.Errorf("app: settlement retry requires trade mode: %w", domain.ErrUnauthorized)
}
