// Command daemon runs a Daemon map-task worker, colocated with a Data Node
// on the same host.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"distcompute/internal/daemon"
	"distcompute/internal/heartbeat"
	"distcompute/internal/jobmanager"
	"distcompute/internal/logging"
	"distcompute/internal/nameservice"
)

func main() {
	var logLevel string
	var debug []string

	rootCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run a Daemon map-task worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			dnAddr, _ := cmd.Flags().GetString("datanode")
			nsAddr, _ := cmd.Flags().GetString("nameservice")
			jmAddr, _ := cmd.Flags().GetString("jobmanager")
			heartbeatInterval, _ := cmd.Flags().GetDuration("heartbeat")

			logger, err := buildLogger(logLevel, debug)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return run(ctx, logger, addr, dnAddr, nsAddr, jmAddr, heartbeatInterval)
		},
	}

	rootCmd.Flags().String("addr", ":4573", "listen address this Daemon advertises and binds its RPC endpoint on")
	rootCmd.Flags().String("datanode", "", "address of the Data Node colocated on this host (required)")
	rootCmd.Flags().String("nameservice", "localhost:4570", "Name Service RPC address")
	rootCmd.Flags().String("jobmanager", "localhost:4572", "Job Manager RPC address")
	rootCmd.Flags().Duration("heartbeat", 10*time.Second, "re-registration interval with the Name Service")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "default minimum log level (debug, info, warn, error)")
	rootCmd.Flags().StringSliceVar(&debug, "debug", nil, "raise one component's log level, as component=level (repeatable)")
	_ = rootCmd.MarkFlagRequired("datanode")

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

func run(ctx context.Context, logger *slog.Logger, addr, dnAddr, nsAddr, jmAddr string, heartbeatInterval time.Duration) error {
	ns, err := nameservice.Dial(nsAddr)
	if err != nil {
		return fmt.Errorf("dial name service %s: %w", nsAddr, err)
	}
	defer ns.Close()

	jm, err := jobmanager.Dial(jmAddr)
	if err != nil {
		return fmt.Errorf("dial job manager %s: %w", jmAddr, err)
	}
	defer jm.Close()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer ln.Close()

	d := daemon.New(daemon.Config{
		Addr:         ln.Addr().String(),
		DataNodeAddr: dnAddr,
		NS:           ns,
		JM:           jm,
		Logger:       logger,
	})
	if err := d.Register(); err != nil {
		return fmt.Errorf("register with name service: %w", err)
	}
	logger.Info("daemon listening", "addr", ln.Addr().String(), "datanode", dnAddr)

	hb, err := heartbeat.Start(heartbeatInterval, d.Register, logger)
	if err != nil {
		return fmt.Errorf("start heartbeat: %w", err)
	}
	defer hb.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- daemon.Serve(d, ln) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		ln.Close()
		return nil
	case err := <-errCh:
		return err
	}
}
