package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairScope/internal/aggregate"
	"pairScope/internal/chain"
	"pairScope/internal/config"
	"pairScope/internal/dex"
	"pairScope/internal/metrics"
	"pairScope/internal/pricing"
	"pairScope/internal/storage"
	"pairScope/internal/storage/memory"
	"pairScope/internal/storage/postgres"
	redisstore "pairScope/internal/storage/redis"
)

func runPrice(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPrice(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	rules, err := pricing.NewRules(cfg.Pricing)
	if err != nil {
		return err
	}

	windowSeconds, err := config.ParseWindow(cfg.Window)
	if err != nil {
		return fmt.Errorf("invalid window: %w", err)
	}

	recomputeFrom, err := config.ParseTimestamp(cfg.RecomputeFrom)
	if err != nil {
		return fmt.Errorf("parse recompute-from: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var caller chain.Caller
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		caller = chainClient
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	var stateStore aggregate.StateStore
	if cfg.StateFile != "" {
		stateStore = &aggregate.FileStateStore{Path: cfg.StateFile}
	} else {
		stateStore = &aggregate.DBStateStore{Store: store, Name: fmt.Sprintf("%s:%d", cfg.StateName, windowSeconds)}
	}

	entities, closeEntities, err := openEntityStore(ctx, cfg, store, stateStore)
	if err != nil {
		return err
	}
	defer closeEntities()

	var resolver pricing.PoolResolver
	if cfg.Resolver == config.ResolverFactory {
		factory, err := dex.NewFactoryResolver(caller, common.HexToAddress(cfg.Factory))
		if err != nil {
			return fmt.Errorf("factory resolver: %w", err)
		}
		resolver = factory
	}

	pipeline := metrics.New(nil)
	serveMetrics(ctx, cfg.MetricsAddr, logger)

	handler := aggregate.NewHandler(rules, resolver, aggregate.NewTokenMetaSource(caller, logger), logger)
	agg := aggregate.NewAggregator(aggregate.Config{
		ChainID:       cfg.ChainID,
		WindowSeconds: windowSeconds,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: recomputeFrom,
		StateStore:    stateStore,
	}, entities, handler, store, pipeline, logger)

	logger.Info("price config",
		zap.String("input", cfg.Input),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("chain_id", cfg.ChainID),
		zap.Uint64("window_seconds", windowSeconds),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Uint64("recompute_from", recomputeFrom),
		zap.String("entity_backend", cfg.EntityBackend),
		zap.String("resolver", cfg.Resolver),
		zap.String("base_asset", rules.BaseAsset()),
	)

	_, err = agg.Run(ctx, cfg.Input)
	return err
}

// openEntityStore returns the configured entity store. The memory backend
// starts from the entities last saved to Postgres, which were written with
// the saved state; the redis backend keeps its own copy and position across
// runs.
func openEntityStore(ctx context.Context, cfg config.PriceConfig, store *postgres.Store, state aggregate.StateStore) (storage.EntityStore, func(), error) {
	switch cfg.EntityBackend {
	case config.BackendRedis:
		client, err := redisstore.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		entities, err := redisstore.NewStore(client, cfg.Redis.Prefix)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return entities, func() { _ = client.Close() }, nil
	default:
		entities := memory.NewStore()
		saved, err := store.LoadEntities(ctx, cfg.ChainID)
		if err != nil {
			return nil, nil, fmt.Errorf("load entities: %w", err)
		}
		pos, ok, err := state.Load(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("load state: %w", err)
		}
		if ok && cfg.RecomputeFrom == "" {
			saved.Position = &pos
		}
		if err := entities.Apply(ctx, saved); err != nil {
			return nil, nil, err
		}
		return entities, func() {}, nil
	}
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
