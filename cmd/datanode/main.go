// Command datanode runs a Data Node chunk transport server.
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

	"distcompute/internal/chunkstore"
	"distcompute/internal/chunkstore/azureblob"
	"distcompute/internal/chunkstore/gcs"
	"distcompute/internal/chunkstore/local"
	"distcompute/internal/chunkstore/s3"
	"distcompute/internal/datanode"
	"distcompute/internal/heartbeat"
	"distcompute/internal/home"
	"distcompute/internal/logging"
	"distcompute/internal/nameservice"
)

func init() {
	chunkstore.Register("local", local.NewFactory())
	chunkstore.Register("s3", s3.NewFactory())
	chunkstore.Register("azureblob", azureblob.NewFactory())
	chunkstore.Register("gcs", gcs.NewFactory())
}

func main() {
	var logLevel string
	var debug []string

	rootCmd := &cobra.Command{
		Use:   "datanode",
		Short: "Run a Data Node",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			nsAddr, _ := cmd.Flags().GetString("nameservice")
			backend, _ := cmd.Flags().GetString("store")
			homeFlag, _ := cmd.Flags().GetString("home")
			storeParams, _ := cmd.Flags().GetStringToString("store-param")
			heartbeatInterval, _ := cmd.Flags().GetDuration("heartbeat")

			logger, err := buildLogger(logLevel, debug)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return run(ctx, logger, addr, nsAddr, backend, homeFlag, storeParams, heartbeatInterval)
		},
	}

	rootCmd.Flags().String("addr", ":4571", "listen address this Data Node advertises and binds its chunk transport socket on")
	rootCmd.Flags().String("nameservice", "localhost:4570", "Name Service RPC address")
	rootCmd.Flags().String("store", "local", "chunk store backend: local, s3, azureblob, or gcs")
	rootCmd.Flags().String("home", "", "data directory for the local store backend (default: platform config dir)")
	rootCmd.Flags().StringToString("store-param", nil, "backend-specific chunk store parameter, key=value (repeatable)")
	rootCmd.Flags().Duration("heartbeat", 10*time.Second, "re-registration interval with the Name Service")
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

func run(ctx context.Context, logger *slog.Logger, addr, nsAddr, backend, homeFlag string, storeParams map[string]string, heartbeatInterval time.Duration) error {
	ns, err := nameservice.Dial(nsAddr)
	if err != nil {
		return fmt.Errorf("dial name service %s: %w", nsAddr, err)
	}
	defer ns.Close()

	if backend == "local" {
		if _, ok := storeParams[local.ParamDir]; !ok {
			hd, err := resolveHome(homeFlag)
			if err != nil {
				return fmt.Errorf("resolve home directory: %w", err)
			}
			if err := hd.EnsureExists(); err != nil {
				return err
			}
			if storeParams == nil {
				storeParams = make(map[string]string)
			}
			storeParams[local.ParamDir] = hd.ChunkDir()
		}
	}

	store, err := chunkstore.Open(backend, storeParams, logger)
	if err != nil {
		return fmt.Errorf("open chunk store %q: %w", backend, err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer ln.Close()

	dn := datanode.New(datanode.Config{Addr: ln.Addr().String(), Store: store, NS: ns, Logger: logger})
	if err := dn.Register(); err != nil {
		return fmt.Errorf("register with name service: %w", err)
	}
	logger.Info("data node listening", "addr", ln.Addr().String(), "store", backend)

	hb, err := heartbeat.Start(heartbeatInterval, dn.Register, logger)
	if err != nil {
		return fmt.Errorf("start heartbeat: %w", err)
	}
	defer hb.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- dn.Serve(ln) }()

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
	return home.Default("datanode")
}
