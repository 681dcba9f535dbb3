// cmd/backtest runs the MACD/EMA/Bollinger strategy against CoinGecko OHLC
// data (or bars saved in SQLite) and prints the report.
//
// Usage:
//
//	go run ./cmd/backtest run --config config.yaml --days 7
//	go run ./cmd/backtest forward
//	go run ./cmd/backtest divergences --offline --json
//	go run ./cmd/backtest history --limit 10
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// flags shared by every subcommand
type rootFlags struct {
	configPath string
	days       int
	offline    bool
	json       bool
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "backtest",
		Short:         "Backtest and forward-test the MACD/EMA/Bollinger strategy",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "YAML config file (optional)")
	root.PersistentFlags().IntVar(&f.days, "days", 0, "Override the number of days fetched (backtest only)")
	root.PersistentFlags().BoolVar(&f.offline, "offline", false, "Replay bars saved in SQLite instead of calling CoinGecko")
	root.PersistentFlags().BoolVar(&f.json, "json", false, "Print JSON instead of tables")

	root.AddCommand(
		newRunCmd(f),
		newForwardCmd(f),
		newDivergencesCmd(f),
		newHistoryCmd(f),
	)
	return root
}
