// Package main implements dummy-broker, a stand-in context broker that
// logs every update it receives. It is meant for trying the adapter out
// without a real broker.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360/ngsiadapter/config"
	"github.com/c360/ngsiadapter/testutil"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("Dummy broker failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		host     string
		port     int
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "dummy-broker",
		Short: "Run a context broker double that accepts NGSI updates",
		Long: `dummy-broker answers legacy and v1 updateContext requests with 200 echoing
the body, and v2 entity attribute updates with 204. Anything else gets the
error a real broker would return.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level, err := config.ParseLogLevel(logLevel)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
				With("service", "dummy-broker")

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			addr := net.JoinHostPort(host, strconv.Itoa(port))
			if err := testutil.NewDummyBroker(logger).ListenAndServe(ctx, addr); err != nil {
				return fmt.Errorf("serve %s: %w", addr, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&host, "host", "H", "127.0.0.1", "Address to listen at")
	cmd.Flags().IntVarP(&port, "port", "p", 1026, "Port to listen at")
	cmd.Flags().StringVarP(&logLevel, "logLevel", "l", "INFO", "Verbosity of log messages")

	return cmd
}
