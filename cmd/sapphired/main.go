// Command sapphired is the marketplace entry point. It loads configuration,
// wires dependencies, and either runs the long-lived daemon (serve) or
// executes a one-shot marketplace operation, printing a structured JSON
// result.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sapphirelabs/sapphire-exchange/internal/config"
	"github.com/sapphirelabs/sapphire-exchange/internal/domain"
)

var (
	configPath string

	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	root := &cobra.Command{
		Use:           "sapphired",
		Short:         "Sapphire Exchange auction marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config %s: %w", configPath, err)
			}
			logger = newLogger(cfg.LogLevel)
			slog.SetDefault(logger)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to configuration file")

	root.AddCommand(
		newServeCmd(),
		newCreateAuctionCmd(),
		newPlaceBidCmd(),
		newEndAuctionCmd(),
		newCancelAuctionCmd(),
		newVerifyWinnerCmd(),
		newBalancesCmd(),
	)

	if err := root.Execute(); err != nil {
		printResult(domain.Fail(err))
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// printResult writes the structured result to stdout. Operation output stays
// on stdout; logs go to stderr.
func printResult(res domain.Result) {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: encode result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
