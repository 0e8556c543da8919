package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/couchcryptid/aquifer-feature-etl/internal/adapter/jsonl"
	"github.com/couchcryptid/aquifer-feature-etl/internal/config"
	"github.com/couchcryptid/aquifer-feature-etl/internal/observability"
	"github.com/spf13/cobra"
)

var (
	enginePath string
	outPath    string
	workers    int
	verbose    bool
	engine     config.Engine
)

var rootCmd = &cobra.Command{
	Use:          "geofeat",
	Short:        "Derive terrain, drought-index and temporal features from local files",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		engine, err = config.LoadEngine(enginePath)
		if err != nil {
			return fmt.Errorf("loading engine config: %w", err)
		}
		if workers < 1 {
			return fmt.Errorf("--workers must be positive, got %d", workers)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&enginePath, "engine", "", "Path to a TOML file of engine parameters")
	rootCmd.PersistentFlags().StringVarP(&outPath, "out", "o", "", "Write JSON lines here instead of stdout")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", runtime.NumCPU(), "Concurrent tiles or locations")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func logger() *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func metrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

// output opens the --out file, or wraps the command's stdout.
func output(cmd *cobra.Command) (*jsonl.Writer, func() error, error) {
	if outPath == "" {
		return jsonl.NewWriter(cmd.OutOrStdout()), func() error { return nil }, nil
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, nil, err
	}
	return jsonl.NewWriter(f), f.Close, nil
}
