package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/corvales/nftmarketd/internal/bank"
	s3blob "github.com/corvales/nftmarketd/internal/blob/s3"
	"github.com/corvales/nftmarketd/internal/cache/redis"
	"github.com/corvales/nftmarketd/internal/config"
	"github.com/corvales/nftmarketd/internal/domain"
	"github.com/corvales/nftmarketd/internal/notify"
	"github.com/corvales/nftmarketd/internal/store/memory"
	"github.com/corvales/nftmarketd/internal/store/postgres"
)

// BalanceStore combines the settlement capability with the deposit
// faucet exposed by the accounts API. Both the in-memory bank and the
// Postgres account store satisfy it.
type BalanceStore interface {
	domain.BalanceBook
	Deposit(ctx context.Context, account common.Address, amount *big.Int) error
}

// Subscriber is the pub/sub capability consumed by the WebSocket hub
// and the notification consumer.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Dependencies bundles the infrastructure the daemon operates on. It is
// constructed by Wire and torn down by the returned cleanup function.
// Optional fields are nil when the corresponding backend is disabled.
type Dependencies struct {
	ListingStore domain.ListingStore
	Bank         BalanceStore

	// Redis-backed; nil when Redis is disabled.
	EventBus    domain.EventBus
	Subscriber  Subscriber
	LockManager *redis.LockManager

	// S3-backed; nil when archiving is disabled.
	BlobWriter domain.BlobWriter

	Notifier *notify.Notifier
}

// Wire constructs concrete implementations from the configuration and
// returns them with a cleanup function releasing all resources in
// reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// ── Persistence: Postgres or process memory ──
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.ListingStore = postgres.NewListingStore(pool)
		deps.Bank = postgres.NewAccountStore(pool)
	} else {
		deps.ListingStore = memory.NewListingStore()
		deps.Bank = bank.New()
	}

	// ── Redis: event bus and writer fence ──
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		bus := redis.NewEventBus(redisClient, int64(cfg.Redis.StreamMaxLen))
		deps.EventBus = bus
		deps.Subscriber = bus
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	// ── S3: settlement archive ──
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	// ── Notifications ──
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
