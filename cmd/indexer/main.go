package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pairScope/internal/chain"
	"pairScope/internal/config"
	"pairScope/internal/indexer"
	"pairScope/internal/metrics"
	"pairScope/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "AMM pair indexer and pricer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch pair logs into JSONL",
		RunE:  runIndexer,
	}

	runCmd.Flags().String("rpc", "", "RPC URL")
	runCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	runCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	runCmd.Flags().StringSlice("address", nil, "pair addresses (comma-separated), empty means any emitter")
	runCmd.Flags().StringSlice("topic0", nil, "topic0 signatures (comma-separated), empty means pair events")
	runCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	runCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("metrics-addr", "", "serve /metrics on this address")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs into typed pair events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("rpc", "", "RPC URL for pair and token metadata")
	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	priceCmd := &cobra.Command{
		Use:   "price",
		Short: "Replay typed events through the pricing rules into window metrics",
		RunE:  runPrice,
	}

	priceCmd.Flags().String("rpc", "", "RPC URL for token metadata and the factory resolver")
	priceCmd.Flags().String("in", "", "input typed events JSONL")
	priceCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h or seconds)")
	priceCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	priceCmd.Flags().Int("batch-size", 1000, "applied events between checkpoints")
	priceCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	priceCmd.Flags().String("state-name", "price", "indexer_state row name when no state file is set")
	priceCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	priceCmd.Flags().Uint64("chain-id", 56, "chain id of the replayed events")
	priceCmd.Flags().String("entity-backend", config.BackendMemory, "entity store (memory, redis)")
	priceCmd.Flags().String("resolver", config.ResolverStore, "pair resolver (store, factory)")
	priceCmd.Flags().String("factory", "", "pair factory address for the factory resolver")
	priceCmd.Flags().String("redis-addr", "", "Redis address for the redis backend")
	priceCmd.Flags().String("redis-password", "", "Redis password")
	priceCmd.Flags().Int("redis-db", 0, "Redis database")
	priceCmd.Flags().String("redis-prefix", "pairscope:", "Redis key prefix")
	priceCmd.Flags().String("metrics-addr", "", "serve /metrics on this address")
	priceCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(priceCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	addresses, err := indexer.ParsePairAddresses(cfg.Addresses)
	if err != nil {
		return err
	}

	topic0, err := indexer.ParsePairTopics(cfg.Topic0)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	serveMetrics(ctx, cfg.MetricsAddr, logger)

	storageSink := storage.NewJsonlStorage(cfg.Out)

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Addresses:         addresses,
		Topic0:            topic0,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, storageSink, logger)

	logger.Info("indexer start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("addresses", len(addresses)),
		zap.Int("topic0", len(topic0)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return runner.Run(ctx)
}

// serveMetrics exposes the default registry in the background when addr
// is set.
func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) {
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, addr, logger); err != nil {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
