package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/veilcraft/settlehouse/internal/blob/s3"
	"github.com/veilcraft/settlehouse/internal/cache/redis"
	"github.com/veilcraft/settlehouse/internal/config"
	"github.com/veilcraft/settlehouse/internal/domain"
	memledger "github.com/veilcraft/settlehouse/internal/ledger/memory"
	"github.com/veilcraft/settlehouse/internal/service"
	"github.com/veilcraft/settlehouse/internal/store/memory"
	"github.com/veilcraft/settlehouse/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Ledger is the in-process execution environment. It serializes
	// settlement calls and backs value, asset, and role lookups.
	Ledger *memledger.Ledger
	Clock  domain.TimeSource

	// Stores
	InvalidatedStore domain.InvalidatedOrderStore
	AuctionStore     domain.AuctionStore
	EventStore       domain.EventStore

	// Currencies is the settlement currency allow-list. Local mode answers
	// from the ledger; serve mode answers from Redis so the list survives
	// restarts.
	Currencies domain.CurrencyRegistry

	// Redis-backed messaging and coordination (nil in local mode).
	Bus          domain.EventBus
	Stream       domain.EventStream
	LockManager  domain.LockManager
	RateLimiter  domain.RateLimiter
	AuctionCache service.AuctionCache

	// Blob storage (archive mode only).
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver
}

// systemClock reports wall-clock time as ledger time. Tests substitute the
// memory ledger's controllable clock instead.
type systemClock struct{}

func (systemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// needsPostgres returns true for modes that require a database connection.
func needsPostgres(mode string) bool {
	return mode == "serve"
}

// needsRedis returns true for modes that require Redis.
func needsRedis(mode string) bool {
	return mode == "serve" || mode == "archive"
}

// needsS3 returns true for modes that require object storage.
func needsS3(mode string) bool {
	return mode == "archive"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Clock: systemClock{}}

	// --- Ledger (settling modes only) ---
	if cfg.Mode != "archive" {
		escrow := common.HexToAddress(cfg.Domain.VerifyingContract)
		deps.Ledger = memledger.New(escrow)
		if cfg.Settlement.Admin != "" {
			deps.Ledger.SetAdmin(common.HexToAddress(cfg.Settlement.Admin), true)
		}
		deps.Currencies = deps.Ledger
	}

	// --- Stores ---
	if needsPostgres(cfg.Mode) {
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
		deps.InvalidatedStore = postgres.NewInvalidatedOrderStore(pool)
		deps.AuctionStore = postgres.NewAuctionStore(pool)
		deps.EventStore = postgres.NewEventStore(pool)
	} else if cfg.Mode != "archive" {
		deps.InvalidatedStore = memory.NewInvalidatedOrderStore()
		deps.AuctionStore = memory.NewAuctionStore()
		deps.EventStore = memory.NewEventStore()
	}

	// --- Redis ---
	if needsRedis(cfg.Mode) {
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

		bus := redis.NewEventBus(redisClient)
		deps.Bus = bus
		deps.Stream = bus
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.AuctionCache = redis.NewAuctionCache(redisClient)
		if cfg.Mode == "serve" {
			deps.Currencies = redis.NewCurrencyRegistry(redisClient)
		}
	}

	// --- S3 blob storage ---
	if needsS3(cfg.Mode) {
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.Stream, deps.BlobWriter, deps.BlobReader, cfg.Archive.Stream, slog.Default())
	}

	return deps, cleanup, nil
}
