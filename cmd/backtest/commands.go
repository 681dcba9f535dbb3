package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"forwardtest/config"
	"forwardtest/internal/app"
	"forwardtest/internal/divergence"
	"forwardtest/internal/logger"
	"forwardtest/internal/pipeline"
	sqlitestore "forwardtest/internal/store/sqlite"
)

func newRunCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a backtest and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := execute(cmd.Context(), f, pipeline.ModeBacktest)
			if err != nil {
				return err
			}
			if f.json {
				return printJSON(os.Stdout, out.Snapshot())
			}
			printReport(os.Stdout, out)
			return nil
		},
	}
}

func newForwardCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "forward",
		Short: "Run a paced forward test over the last day of data",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := execute(cmd.Context(), f, pipeline.ModeForward)
			if err != nil {
				return err
			}
			if f.json {
				return printJSON(os.Stdout, out.Snapshot())
			}
			printReport(os.Stdout, out)
			return nil
		},
	}
}

func newDivergencesCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "divergences",
		Short: "Run a backtest and print the divergence events and analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := execute(cmd.Context(), f, pipeline.ModeBacktest)
			if err != nil {
				return err
			}
			if f.json {
				return printJSON(os.Stdout, struct {
					Events   any                 `json:"divergences"`
					Analysis divergence.Analysis `json:"analysis"`
				}{out.Snapshot().Divergences, out.Analysis})
			}
			printDivergences(os.Stdout, out)
			return nil
		},
	}
}

func newHistoryCmd(f *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the SQLite journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			if cfg.Storage.SQLitePath == "" {
				return errors.New("history needs storage.sqlite_path")
			}
			db, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.Storage.SQLitePath})
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if f.json {
				return printJSON(os.Stdout, runs)
			}
			printHistory(os.Stdout, runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to list")
	return cmd
}

// execute loads config, builds the stack and runs one request.
func execute(ctx context.Context, f *rootFlags, mode pipeline.Mode) (*pipeline.Outcome, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	logg := logger.New(os.Stderr, "backtest", logger.ParseLevel(cfg.Log.Level), cfg.Log.Format)

	stack, err := app.Build(cfg, app.Options{Offline: f.offline, Logger: logg})
	if err != nil {
		return nil, err
	}
	defer stack.Close()

	runner, err := stack.Runner(nil)
	if err != nil {
		return nil, err
	}
	out, err := runner.Run(ctx, pipeline.Request{Mode: mode, Strategy: cfg.Strategy, Days: f.days})
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", mode, err)
	}
	return out, nil
}
