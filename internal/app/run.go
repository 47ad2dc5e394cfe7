package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	s3blob "github.com/corvales/nftmarketd/internal/blob/s3"
	"github.com/corvales/nftmarketd/internal/domain"
	"github.com/corvales/nftmarketd/internal/ledger"
	"github.com/corvales/nftmarketd/internal/notify"
	"github.com/corvales/nftmarketd/internal/registry"
	"github.com/corvales/nftmarketd/internal/server"
	"github.com/corvales/nftmarketd/internal/server/handler"
	"github.com/corvales/nftmarketd/internal/server/ws"
)

const (
	// writerLockKey fences the ledger's single-writer loop: only one
	// replica at a time may mutate the listing collection.
	writerLockKey = "ledger:writer"

	writerLockTTL = 30 * time.Second

	shutdownTimeout = 10 * time.Second
)

// serve builds the ledger and the API surface on top of the wired
// dependencies and runs every component until the context is cancelled.
func (a *App) serve(ctx context.Context, deps *Dependencies) error {
	// Writer fence. With Redis disabled the daemon is necessarily
	// single-process and the in-process mutex suffices.
	if deps.LockManager != nil {
		release, err := deps.LockManager.Hold(ctx, writerLockKey, writerLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return fmt.Errorf("app: another replica holds the writer lock: %w", err)
			}
			return fmt.Errorf("app: acquire writer lock: %w", err)
		}
		a.closers = append(a.closers, release)
	}

	reg := registry.New(
		a.cfg.Registry.Name,
		a.cfg.Registry.Symbol,
		common.HexToAddress(a.cfg.Registry.ContractAddress),
	)

	led, err := ledger.New(ledger.Config{
		FeeAccount: common.HexToAddress(a.cfg.Market.FeeAccount),
		FeePercent: a.cfg.Market.FeePercent,
		Custody:    common.HexToAddress(a.cfg.Market.CustodyAccount),
	}, reg, deps.Bank, deps.ListingStore, deps.EventBus, a.logger)
	if err != nil {
		return fmt.Errorf("app: build ledger: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub mirrors market events when the bus is available.
	var hub *ws.Hub
	if deps.Subscriber != nil {
		hub = ws.NewHub(deps.Subscriber, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	// Notification consumer.
	if deps.Subscriber != nil && deps.Notifier != nil {
		consumer := notify.NewConsumer(deps.Subscriber, deps.Notifier, a.logger)
		g.Go(func() error {
			return consumer.Run(ctx)
		})
	}

	// Settlement archiver.
	if deps.BlobWriter != nil {
		archiver := s3blob.NewArchiver(
			deps.BlobWriter,
			deps.ListingStore,
			a.cfg.Archive.Interval.Duration,
			a.logger,
		)
		g.Go(func() error {
			return archiver.Run(ctx)
		})
	}

	// HTTP API server.
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(),
		Listings: handler.NewListingHandler(led, a.logger),
		Tokens:   handler.NewTokenHandler(reg, a.logger),
		Accounts: handler.NewAccountHandler(deps.Bank, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("app: serve: %w", err)
	}
	return nil
}
