// Command wirechatd runs the multi-user emulator streaming server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/letsplay-server/internal/app"
	"github.com/vovakirdan/letsplay-server/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, logLevel string

	cmd := &cobra.Command{
		Use:   "wirechatd",
		Short: "Run the emulator streaming server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a wirechat.yaml config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	return cmd
}

func run(configPath, logLevel string) error {
	logger := log.New(logLevel)

	a, err := app.New(configPath, logger)
	if err != nil {
		return fmt.Errorf("wirechatd: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Msg("wirechatd starting")
	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("wirechatd: %w", err)
	}
	logger.Info().Msg("wirechatd stopped")
	return nil
}
