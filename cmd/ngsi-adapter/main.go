// Package main implements the ngsi-adapter command, which forwards
// monitoring probe output to an NGSI context broker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/ngsiadapter/adapter"
	"github.com/c360/ngsiadapter/config"
)

// Build information constants
const (
	Version   = "1.4.0"
	BuildTime = "dev"
	appName   = "ngsi-adapter"
)

const shutdownTimeout = 30 * time.Second

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Adapt monitoring probe output to NGSI context updates",
		Long: `ngsi-adapter receives the output of monitoring probes over HTTP, UDP or NATS,
parses it into context attributes and updates the matching entity in an NGSI
context broker, retrying transport failures.

HTTP requests take the form POST /{probe}?id={entityId}&type={entityType}.

The API spoken to the broker follows the path of --brokerUrl:
  http://broker:1026/      legacy ngsi10 updateContext
  http://broker:1026/v1    v1 updateContext
  http://broker:1026/v2    v2 entity attributes`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	addFlags(cmd.PersistentFlags())

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newParsersCmd())
	cmd.AddCommand(newCheckCmd())

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("Starting NGSI Adapter", "op", "Init", "build_time", BuildTime, "config", cfg.String())
	for _, w := range cfg.Warnings {
		logger.Warn(w, "op", "Init")
	}

	svc, err := adapter.New(cfg, adapter.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create adapter: %w", err)
	}

	return runWithSignalHandling(ctx, svc, shutdownTimeout)
}

func runWithSignalHandling(ctx context.Context, svc *adapter.Service, timeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := svc.Start(signalCtx); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}

	<-signalCtx.Done()
	slog.Info("Received shutdown signal", "op", "Exit")

	if err := svc.Stop(timeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("NGSI Adapter shutdown complete", "op", "Exit")
	return nil
}
