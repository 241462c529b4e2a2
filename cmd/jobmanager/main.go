// Command jobmanager runs the Job Manager control-plane server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"distcompute/internal/jobmanager"
	"distcompute/internal/logging"
	"distcompute/internal/nameservice"
)

func main() {
	var logLevel string
	var debug []string

	rootCmd := &cobra.Command{
		Use:   "jobmanager",
		Short: "Run the Job Manager",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			nsAddr, _ := cmd.Flags().GetString("nameservice")

			logger, err := buildLogger(logLevel, debug)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return run(ctx, logger, addr, nsAddr)
		},
	}

	rootCmd.Flags().String("addr", ":4572", "listen address (host:port) for the JobManager RPC endpoint")
	rootCmd.Flags().String("nameservice", "localhost:4570", "Name Service RPC address")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "default minimum log level (debug, info, warn, error)")
	rootCmd.Flags().StringSliceVar(&debug, "debug", nil, "raise one component's log level, as component=level (repeatable)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func buildLogger(logLevel string, debug []string) (*slog.Logger, error) {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	componentLevels, err := logging.ParseComponentLevels(debug)
	if err != nil {
		return nil, err
	}
	return logging.NewBase(os.Stderr, level, componentLevels), nil
}

func run(ctx context.Context, logger *slog.Logger, addr, nsAddr string) error {
	ns, err := nameservice.Dial(nsAddr)
	if err != nil {
		return fmt.Errorf("dial name service %s: %w", nsAddr, err)
	}
	defer ns.Close()

	svc := jobmanager.New(jobmanager.Config{NS: ns, Logger: logger})

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer ln.Close()
	logger.Info("job manager listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- jobmanager.Serve(svc, ln) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		ln.Close()
		return nil
	case err := <-errCh:
		return err
	}
}
