package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sapphirelabs/sapphire-exchange/internal/auction"
	s3blob "github.com/sapphirelabs/sapphire-exchange/internal/blob/s3"
	cachemem "github.com/sapphirelabs/sapphire-exchange/internal/cache/memory"
	"github.com/sapphirelabs/sapphire-exchange/internal/cache/redis"
	"github.com/sapphirelabs/sapphire-exchange/internal/chain"
	"github.com/sapphirelabs/sapphire-exchange/internal/config"
	"github.com/sapphirelabs/sapphire-exchange/internal/content"
	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
	"github.com/sapphirelabs/sapphire-exchange/internal/ledger"
	"github.com/sapphirelabs/sapphire-exchange/internal/notify"
	"github.com/sapphirelabs/sapphire-exchange/internal/seq"
	"github.com/sapphirelabs/sapphire-exchange/internal/store/cached"
	storemem "github.com/sapphirelabs/sapphire-exchange/internal/store/memory"
	"github.com/sapphirelabs/sapphire-exchange/internal/store/postgres"
	"github.com/sapphirelabs/sapphire-exchange/internal/verify"
	"github.com/sapphirelabs/sapphire-exchange/internal/wallet"
)

// standaloneFunds is the content-store balance granted to the publishing
// account in standalone mode.
const standaloneFunds = 1000.0

// Dependencies bundles every concrete dependency the operating modes need.
// Wire constructs it; the returned cleanup function tears it down.
type Dependencies struct {
	Users domain.UserStore
	Items domain.ItemStore
	Bids  domain.BidStore

	Cache domain.EntityCache
	Locks domain.LockManager
	Bus   domain.SignalBus

	Store     domain.ContentStorePort
	Publisher *content.Publisher

	Chains   *chain.Registry
	Transfer domain.ValueTransferPort

	Deriver   *wallet.Deriver
	Keystore  *wallet.Keystore
	Sequences *seq.Generator

	Ledger   *ledger.Ledger
	Auctions *auction.Service

	Verifier   *verify.Verifier
	VerifyLoop *verify.Loop

	Notifier *notify.Notifier
}

// Wire constructs all concrete implementations from the configuration. Mode
// selects the backends: standalone runs on process memory, every other mode
// on Postgres and Redis.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	standalone := strings.ToLower(cfg.Mode) == config.ModeStandalone

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// Stores, cache, locks, bus.
	if standalone {
		deps.Users = storemem.NewUserStore()
		deps.Items = storemem.NewItemStore()
		deps.Bids = storemem.NewBidStore()
		deps.Cache = cachemem.NewCache()
		deps.Locks = cachemem.NewLockManager()
		deps.Bus = cachemem.NewBus()
	} else {
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
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		pool := pgClient.Pool()
		deps.Cache = redis.NewEntityCache(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)

		deps.Users = cached.NewUserStore(postgres.NewUserStore(pool), deps.Cache)
		deps.Items = cached.NewItemStore(postgres.NewItemStore(pool), deps.Cache)
		deps.Bids = cached.NewBidStore(postgres.NewBidStore(pool), deps.Cache)
	}

	// Content store, with an optional S3 mirror.
	if standalone {
		mem := content.NewMemoryStore()
		mem.SetBalance(cfg.Content.Account, standaloneFunds)
		deps.Store = mem
	} else {
		gateway, err := content.NewGateway(content.GatewayConfig{
			BaseURL: cfg.Content.GatewayURL,
			Timeout: cfg.Content.Timeout.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: content gateway: %w", err))
		}
		deps.Store = gateway
	}
	if cfg.S3.Enabled {
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
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Store = content.NewMirror(deps.Store, s3blob.NewStore(s3Client), logger)
	}
	deps.Publisher = content.NewPublisher(deps.Store, content.Config{
		Account:    cfg.Content.Account,
		MinBalance: cfg.Content.MinBalance,
	}, logger)

	// Value-transfer ports, one per configured currency.
	deps.Chains = chain.NewRegistry(logger)
	currency := strings.ToUpper(cfg.Auction.Currency)
	if standalone {
		deps.Chains.Register(currency, chain.NewMemoryLedger(currency))
	} else {
		for cur, node := range cfg.Chain.Nodes {
			client, err := chain.NewRPCClient(chain.RPCConfig{
				Currency: cur,
				NodeURL:  node.URL,
				APIKey:   node.APIKey,
				Timeout:  cfg.Chain.Timeout.Duration,
			})
			if err != nil {
				return fail(fmt.Errorf("wire: chain node %s: %w", cur, err))
			}
			deps.Chains.Register(cur, client)
		}
	}
	transfer, err := deps.Chains.Port(currency)
	if err != nil {
		return fail(fmt.Errorf("wire: no node configured for marketplace currency %s: %w", currency, err))
	}
	deps.Transfer = transfer

	// Wallets and sequencing.
	masterSeed, err := hex.DecodeString(cfg.Wallet.MasterSeed)
	if err != nil {
		return fail(fmt.Errorf("wire: master seed is not valid hex: %w", err))
	}
	deps.Deriver = wallet.NewDeriver()
	keystore, err := wallet.NewKeystore(cfg.Wallet.KeyPassword)
	if err != nil {
		return fail(fmt.Errorf("wire: keystore: %w", err))
	}
	deps.Keystore = keystore
	deps.Sequences = seq.NewGenerator(deps.Transfer)

	// Notifications.
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.New(senders, logger)

	// Services.
	deps.Ledger = ledger.New(
		deps.Items, deps.Bids, deps.Transfer, deps.Publisher,
		deps.Locks, deps.Bus, logger,
	)

	claimAmount, err := domain.NewAmount(cfg.Auction.ClaimAmount, currency)
	if err != nil {
		return fail(fmt.Errorf("wire: claim_amount: %w", err))
	}
	auctions, err := auction.New(auction.Config{
		MasterSeed:     masterSeed,
		PostedBy:       cfg.Auction.PostedBy,
		SequenceWallet: cfg.Auction.SequenceWallet,
		FundingWallet:  cfg.Auction.FundingWallet,
		ClaimAmount:    claimAmount,
	}, auction.Deps{
		Items:     deps.Items,
		Users:     deps.Users,
		Bids:      deps.Bids,
		Ledger:    deps.Ledger,
		Publisher: deps.Publisher,
		Deriver:   deps.Deriver,
		Keystore:  deps.Keystore,
		Sequences: deps.Sequences,
		Locks:     deps.Locks,
		Bus:       deps.Bus,
		Notifier:  deps.Notifier,
		Logger:    logger,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: auction service: %w", err))
	}
	deps.Auctions = auctions

	deps.Verifier = verify.NewVerifier(deps.Items, deps.Bids, deps.Transfer, deps.Bus, logger)
	deps.VerifyLoop = verify.NewLoop(
		deps.Verifier, deps.Items,
		cfg.Verify.Interval.Duration, cfg.Verify.Lookback.Duration,
		logger,
	)

	return deps, cleanup, nil
}
