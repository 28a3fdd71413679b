package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ammCore/internal/config"
	"ammCore/internal/engine"
	"ammCore/internal/pool"
	"ammCore/internal/storage"
	"ammCore/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "ammcore",
		Short:        "AMM pool replay engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Replay an operation log and persist snapshots",
		RunE:  runReplay,
	}

	runCmd.Flags().String("ops", "", "input operations JSONL path")
	runCmd.Flags().String("out-dir", "./data", "output directory for JSONL snapshots")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN (overrides out-dir)")
	runCmd.Flags().Uint64("snapshot-every", 1000, "operations between snapshot flushes")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts for storage writes")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a trade against an ad-hoc pool",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("kind", "constant_product", "curve kind (constant_product or stable)")
	quoteCmd.Flags().Uint64("reserve-a", 0, "pool reserve of asset A")
	quoteCmd.Flags().Uint64("reserve-b", 0, "pool reserve of asset B")
	quoteCmd.Flags().Uint64("amp", 100, "amplification coefficient (stable only)")
	quoteCmd.Flags().Uint64("fee-bps", 30, "trade fee in basis points")
	quoteCmd.Flags().Uint64("amount-in", 0, "input amount")
	quoteCmd.Flags().String("direction", "a-to-b", "trade direction (a-to-b or b-to-a)")

	root.AddCommand(quoteCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runReplay(cmd *cobra.Command, _ []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink storage.Storage
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		sink = store
	} else {
		sink = storage.NewJsonlStorage(cfg.OutDir)
	}

	runner := engine.NewRunner(engine.RunConfig{
		OpsPath:           cfg.Ops,
		SnapshotEvery:     cfg.SnapshotEvery,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, pool.NewRegistry(), sink, logger)

	logger.Info("replay start",
		zap.String("ops", cfg.Ops),
		zap.String("out_dir", cfg.OutDir),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.Uint64("snapshot_every", cfg.SnapshotEvery),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return runner.Run(ctx)
}

func runQuote(cmd *cobra.Command, _ []string) error {
	kind, _ := cmd.Flags().GetString("kind")
	reserveA, _ := cmd.Flags().GetUint64("reserve-a")
	reserveB, _ := cmd.Flags().GetUint64("reserve-b")
	amp, _ := cmd.Flags().GetUint64("amp")
	feeBps, _ := cmd.Flags().GetUint64("fee-bps")
	amountIn, _ := cmd.Flags().GetUint64("amount-in")
	direction, _ := cmd.Flags().GetString("direction")

	var aToB bool
	switch direction {
	case "a-to-b":
		aToB = true
	case "b-to-a":
		aToB = false
	default:
		return fmt.Errorf("invalid direction %q", direction)
	}

	// Scratch pool seeded with the given reserves; the first deposit books
	// them verbatim on either curve.
	assetA := common.HexToAddress("0x01")
	assetB := common.HexToAddress("0x02")
	var p pool.Pool
	switch pool.Kind(kind) {
	case pool.KindConstantProduct:
		cp, err := pool.NewConstantProduct(assetA, assetB, feeBps, 0)
		if err != nil {
			return err
		}
		p = cp
	case pool.KindStable:
		sp, err := pool.NewStable(assetA, assetB, feeBps, 0, amp)
		if err != nil {
			return err
		}
		p = sp
	default:
		return fmt.Errorf("invalid kind %q", kind)
	}
	if _, err := p.AddLiquidity(reserveA, reserveB, 0); err != nil {
		return fmt.Errorf("seed reserves: %w", err)
	}
	// Open the impact cap so the quote reports impact instead of aborting.
	p.State().MaxPriceImpactBps = 10000

	swap := p.SwapAToB
	if !aToB {
		swap = p.SwapBToA
	}
	res, err := swap(pool.SwapParams{AmountIn: amountIn})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "amount_out=%d fee=%d impact_bps=%d\n",
		res.AmountOut, res.Fee, res.ImpactBps)
	return nil
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
