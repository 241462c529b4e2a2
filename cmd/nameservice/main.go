// Command nameservice runs the Name Service control-plane server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"distcompute/internal/eventbus"
	"distcompute/internal/home"
	"distcompute/internal/logging"
	"distcompute/internal/nameservice"
)

func main() {
	var logLevel string
	var debug []string

	rootCmd := &cobra.Command{
		Use:   "nameservice",
		Short: "Run the Name Service",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			homeFlag, _ := cmd.Flags().GetString("home")
			brokers, _ := cmd.Flags().GetStringSlice("kafka-brokers")
			topic, _ := cmd.Flags().GetString("kafka-topic")

			logger, err := buildLogger(logLevel, debug)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return run(ctx, logger, addr, homeFlag, brokers, topic)
		},
	}

	rootCmd.Flags().String("addr", ":4570", "listen address (host:port) for the NameService RPC endpoint")
	rootCmd.Flags().String("home", "", "data directory holding the metadata snapshot (default: platform config dir)")
	rootCmd.Flags().StringSlice("kafka-brokers", nil, "Kafka seed brokers for the metadata change feed; empty disables it")
	rootCmd.Flags().String("kafka-topic", "distcompute-nameservice-events", "Kafka topic for the metadata change feed")
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

func run(ctx context.Context, logger *slog.Logger, addr, homeFlag string, brokers []string, topic string) error {
	hd, err := resolveHome(homeFlag)
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}
	if err := hd.EnsureExists(); err != nil {
		return err
	}
	logger.Info("home directory", "path", hd.Root())

	var bus *eventbus.Publisher
	if len(brokers) > 0 {
		bus, err = eventbus.New(eventbus.Config{Brokers: brokers, Topic: topic, Logger: logger})
		if err != nil {
			return fmt.Errorf("connect event bus: %w", err)
		}
		defer bus.Close()
	}

	cfg := nameservice.Config{SnapshotPath: hd.SnapshotPath(), Logger: logger}
	if bus != nil {
		cfg.Bus = bus
	}
	svc, err := nameservice.New(cfg)
	if err != nil {
		return fmt.Errorf("start name service: %w", err)
	}
	defer svc.Close()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer ln.Close()
	logger.Info("name service listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- nameservice.Serve(svc, ln) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		ln.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

func resolveHome(flagValue string) (home.Dir, error) {
	if flagValue != "" {
		return home.New(flagValue), nil
	}
	return home.Default("nameservice")
}
