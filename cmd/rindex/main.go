package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/Adithya-Monish-Kumar-K/dynamic-rindex/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "rindex",
		Short: "Build, query and inspect dynamic r-index snapshots",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetupWriter(os.Stderr, logLevel, logFormat)
		},
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	rootCmd.AddCommand(buildCmd, queryCmd, snapshotCmd)
	snapshotCmd.AddCommand(inspectCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
