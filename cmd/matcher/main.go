// Package main is the opportunity-matcher CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/david/opportunity-matcher/internal/config"
	"github.com/david/opportunity-matcher/internal/logger"
)

// app holds what every subcommand needs once the root pre-run has loaded it.
type app struct {
	cfg *config.Config
	log *zap.Logger
}

var rootApp = &app{}

var rootCmd = &cobra.Command{
	Use:   "matcher",
	Short: "Match space-tech startups to government contract opportunities",
	Long: `matcher scores a company and project profile against stored contract and
grant notices and prints the best matches.

Notices are collected from the sources in the registry with "ingest", and the
database schema is managed with "migrate".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfgFile, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.LogLevel = lvl
		}

		log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		rootApp.cfg = cfg
		rootApp.log = log
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if rootApp.log != nil {
			_ = rootApp.log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./matcher.yaml or ./configs/matcher.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override log level (debug, info, warn, error)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
