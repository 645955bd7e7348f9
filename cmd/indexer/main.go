package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// a missing .env is fine; env and flags still apply
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "indexer",
		Short:        "Pool contract event indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Backfill history, then follow new events",
		RunE:  runIndexer,
	}
	addIngestFlags(runCmd.Flags())
	runCmd.Flags().String("ws-rpc", "", "websocket RPC URL for live subscriptions (defaults to --rpc)")
	runCmd.Flags().Duration("reconnect-initial", time.Second, "initial reconnect backoff")
	runCmd.Flags().Duration("reconnect-max", time.Minute, "maximum reconnect backoff")
	runCmd.Flags().Float64("reconnect-multiplier", 2, "reconnect backoff multiplier")
	runCmd.Flags().Bool("concurrent-backfill", false, "follow new events while the backfill runs")
	runCmd.Flags().Duration("flush-interval", 5*time.Second, "how often the live watermark is saved")
	runCmd.Flags().Uint64("reorder-window", 12, "blocks the live watermark trails the newest delivery")

	root.AddCommand(runCmd)

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Backfill a block range and exit",
		RunE:  runBackfill,
	}
	addIngestFlags(backfillCmd.Flags())

	root.AddCommand(backfillCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addIngestFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "RPC URL (http(s) or ws(s))")
	flags.String("contract", "", "pool contract address")
	flags.String("event-abi", "", "event ABI JSON file (defaults to the built-in pool ABI)")
	flags.StringSlice("events", nil, "event kinds to ingest (comma-separated, default all)")
	flags.Uint64("from", 0, "start block (inclusive)")
	flags.String("to", "latest", "end block (inclusive) or latest")
	flags.Uint64("batch-size", 2000, "blocks per range query")
	flags.String("store", "postgres", "aggregate store (postgres, memory)")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("watermark-file", "", "keep the watermark in a local file instead of the store")
	flags.Int("max-retries", 5, "maximum retry attempts per range and per event")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.Int("workers", 4, "apply workers (events of one pool stay on one worker)")
	flags.Int("queue-depth", 256, "queued events per worker")
	flags.Int("rpc-rps", 10, "range queries per second, 0 for unlimited")
	flags.String("metrics-addr", "", "prometheus listen address, empty disables")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
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
