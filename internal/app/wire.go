package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/outcomelab/tradeflow/internal/blob/s3"
	"github.com/outcomelab/tradeflow/internal/cache/redis"
	"github.com/outcomelab/tradeflow/internal/chain"
	"github.com/outcomelab/tradeflow/internal/config"
	"github.com/outcomelab/tradeflow/internal/domain"
	"github.com/outcomelab/tradeflow/internal/notify"
	"github.com/outcomelab/tradeflow/internal/server/handler"
	"github.com/outcomelab/tradeflow/internal/store/postgres"
	"github.com/outcomelab/tradeflow/internal/venue"
	"github.com/outcomelab/tradeflow/internal/wallet"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function. Fields gated on the mode (chain, venue, blob storage) are nil in
// modes that do not need them.
type Dependencies struct {
	// Stores
	OrderStore      domain.OrderStore
	SettlementStore domain.SettlementStore
	AuditStore      domain.AuditStore

	// Coordination
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Chain and signing
	Chain  *chain.Client
	Signer *wallet.Signer
	Venue  *venue.Client

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Pingers feed the readiness endpoint, one per wired backend.
	Pingers map[string]handler.Pinger
}

// needsPostgres reports whether the mode persists orders and settlements.
func needsPostgres(mode string) bool {
	switch mode {
	case "trade", "server":
		return true
	default:
		return false
	}
}

// needsChain reports whether the mode signs and sends transactions.
func needsChain(mode string) bool {
	return mode == "trade"
}

// needsS3 reports whether the mode archives to object storage.
func needsS3(mode string) bool {
	return mode == "trade"
}

// pingFunc adapts a bare function to the handler.Pinger interface.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// denyApprover refuses every signing request. Selected when auto_approve is
// off: an unattended process has nobody to ask, so the request surfaces as a
// user rejection instead of hanging.
type denyApprover struct{}

func (denyApprover) Approve(ctx context.Context, summary string) error {
	return fmt.Errorf("app: signing %q requires auto_approve: %w", summary, domain.ErrUserRejected)
}

// Wire constructs the concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to be
// called on shutdown.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Pingers: make(map[string]handler.Pinger),
	}

	// --- PostgreSQL ---
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
		deps.OrderStore = postgres.NewOrderStore(pool)
		deps.SettlementStore = postgres.NewSettlementStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Pingers["postgres"] = pingFunc(pool.Ping)
	}

	// --- Redis ---
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

	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Pingers["redis"] = redisClient

	// --- Chain client, signer, and venue ---
	if needsChain(cfg.Mode) {
		keyHex, err := wallet.ResolveKey(wallet.KeySource{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}

		chainClient, err := chain.Dial(ctx, chain.Config{
			RPCURL:             cfg.Chain.RPCURL,
			ChainID:            cfg.Chain.ChainID,
			CollateralToken:    cfg.Chain.CollateralToken,
			ConditionalTokens:  cfg.Chain.ConditionalTokens,
			Exchange:           cfg.Chain.Exchange,
			CollateralDecimals: cfg.Chain.CollateralDecimals,
		}, keyHex, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain: %w", err)
		}
		closers = append(closers, chainClient.Close)
		deps.Chain = chainClient

		var approver wallet.Approver = denyApprover{}
		if cfg.Wallet.AutoApprove {
			approver = wallet.AutoApprover{}
		}
		signer, err := wallet.NewSigner(keyHex, cfg.Chain.ChainID, cfg.Chain.Exchange, approver)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		deps.Signer = signer

		deps.Venue = venue.NewClient(venue.Config{
			BaseURL: cfg.Venue.BaseURL,
			Auth: venue.HMACAuth{
				Key:        cfg.Venue.ApiKey,
				Secret:     cfg.Venue.ApiSecret,
				Passphrase: cfg.Venue.ApiPassphrase,
			},
			Timeout: cfg.Venue.Timeout.Duration,
		}, logger)
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Pingers["s3"] = pingFunc(s3Client.Health)
		if deps.SettlementStore != nil && deps.AuditStore != nil {
			deps.Archiver = s3blob.NewArchiver(
				deps.BlobWriter,
				deps.SettlementStore,
				deps.AuditStore,
				deps.AuditStore,
			)
		}
	}

	// --- Notifications ---
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
