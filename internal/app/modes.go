package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/veilcraft/settlehouse/internal/auction"
	"github.com/veilcraft/settlehouse/internal/crypto"
	"github.com/veilcraft/settlehouse/internal/currency"
	"github.com/veilcraft/settlehouse/internal/market"
	"github.com/veilcraft/settlehouse/internal/server"
	"github.com/veilcraft/settlehouse/internal/server/handler"
	"github.com/veilcraft/settlehouse/internal/server/ws"
	"github.com/veilcraft/settlehouse/internal/service"
)

// LocalMode runs the settlement service against the in-memory ledger and
// stores. It serves the HTTP API when enabled, without Redis coordination.
func (a *App) LocalMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting local mode")

	svc, err := a.buildService(deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc)
	} else {
		a.logger.InfoContext(ctx, "server disabled; settlement service is idle")
		g.Go(func() error {
			<-ctx.Done()
			return ctx.Err()
		})
	}

	return g.Wait()
}

// ServeMode runs the full stack: Postgres stores, Redis coordination and
// messaging, the HTTP API, and the WebSocket hub.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	svc, err := a.buildService(deps)
	if err != nil {
		return err
	}
	if deps.LockManager != nil {
		svc.WithLockManager(deps.LockManager)
	}
	if deps.AuctionCache != nil {
		svc.WithAuctionCache(deps.AuctionCache)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, svc)
	return g.Wait()
}

// ArchiveMode drains the settlement event stream into object storage on a
// fixed interval. The stream cursor is persisted next to the batches, so a
// restarted archiver resumes after the last batch it uploaded.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires object storage")
	}

	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = time.Minute
	}

	a.logger.InfoContext(ctx, "starting archive mode",
		slog.String("stream", a.cfg.Archive.Stream),
		slog.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastID, err := deps.Archiver.LoadCursor(ctx)
	if err != nil {
		return fmt.Errorf("app: archive mode: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			next, n, err := deps.Archiver.ArchiveBatch(ctx, lastID)
			if err != nil {
				a.logger.WarnContext(ctx, "archive batch failed",
					slog.String("last_id", lastID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "archived settlement events",
					slog.Int("count", n),
					slog.String("cursor", next),
				)
			}
			lastID = next
		}
	}
}

// buildService assembles the market, auction house, and settlement service
// from the wired dependencies and the configured addresses.
func (a *App) buildService(deps *Dependencies) (*service.SettlementService, error) {
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Signer.PrivateKey,
		EncryptedKeyPath: a.cfg.Signer.EncryptedKeyPath,
		KeyPassword:      a.cfg.Signer.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("app: load signer key: %w", err)
	}
	signer, err := crypto.NewSigner(keyHex)
	if err != nil {
		return nil, fmt.Errorf("app: signer: %w", err)
	}

	dom := crypto.Domain{
		Name:              a.cfg.Domain.Name,
		Version:           a.cfg.Domain.Version,
		ChainID:           a.cfg.Domain.ChainID,
		VerifyingContract: common.HexToAddress(a.cfg.Domain.VerifyingContract),
	}
	escrow := dom.VerifyingContract

	engine := currency.NewEngine(deps.Ledger)

	mkt := market.New(
		market.Config{
			Domain:        dom,
			TrustedSigner: signer.Address(),
			FeeRecipient:  common.HexToAddress(a.cfg.Settlement.FeeRecipient),
		},
		deps.InvalidatedStore,
		deps.Currencies,
		deps.Ledger,
		deps.Ledger,
		engine,
		deps.Clock,
		a.logger,
	)

	house := auction.New(
		auction.Config{
			Domain:        dom,
			TrustedSigner: signer.Address(),
			Collection:    common.HexToAddress(a.cfg.Settlement.Collection),
			Platform:      common.HexToAddress(a.cfg.Settlement.Platform),
		},
		escrow,
		deps.AuctionStore,
		deps.Ledger,
		engine,
		deps.Clock,
		a.logger,
	)

	svc := service.NewSettlementService(
		mkt,
		house,
		deps.Ledger,
		deps.Ledger,
		deps.EventStore,
		deps.Bus,
		deps.Stream,
		deps.Clock,
		a.logger,
	)
	return svc, nil
}

// startHTTPServer registers the API server (and the WebSocket hub when an
// event bus is wired) on the errgroup.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svc *service.SettlementService,
) {
	var hub *ws.Hub
	if deps.Bus != nil {
		hub = ws.NewHub(deps.Bus, a.logger, ws.Config{
			Channels:  []string{service.EventChannel},
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		},
		server.Handlers{
			Health:     handler.NewHealthHandler(a.logger),
			Orders:     handler.NewOrderHandler(svc, a.logger),
			Auctions:   handler.NewAuctionHandler(svc, a.logger),
			Currencies: handler.NewCurrencyHandler(svc, a.logger),
			Events:     handler.NewEventHandler(svc, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
