// Command hdfs is the client CLI: write/read/delete files, submit
// map/reduce jobs, and reset the Name Service's metadata catalog.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"distcompute/internal/hdfsclient"
	"distcompute/internal/jobclient"
	"distcompute/internal/jobmanager"
	"distcompute/internal/logging"
	"distcompute/internal/nameservice"
)

func main() {
	var nsAddr, jmAddr, dataDir, logLevel string
	var debug []string

	rootCmd := &cobra.Command{Use: "hdfs", Short: "Chunked file store and job submission client"}
	rootCmd.PersistentFlags().StringVar(&nsAddr, "nameservice", "localhost:4570", "Name Service RPC address")
	rootCmd.PersistentFlags().StringVar(&jmAddr, "jobmanager", "localhost:4572", "Job Manager RPC address")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "local chunk-storage directory shared with the colocated Data Node/Daemon (required for job run)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "default minimum log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringSliceVar(&debug, "debug", nil, "raise one component's log level, as component=level (repeatable)")

	var chunkSize int64
	var replicationFactor int
	writeCmd := &cobra.Command{
		Use:   "write {line|kv} <localPath> <hdfsName>",
		Short: "Write a local file into the chunked store",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			hc, closeFn, err := dialHC(nsAddr)
			if err != nil {
				return err
			}
			defer closeFn()
			return hc.Write(hdfsclient.WriteOptions{
				FormatName:        args[0],
				LocalPath:         args[1],
				HDFSName:          args[2],
				ChunkSize:         chunkSize,
				ReplicationFactor: replicationFactor,
			})
		},
	}
	writeCmd.Flags().Int64Var(&chunkSize, "chunk-size", 64<<20, "target chunk size in bytes")
	writeCmd.Flags().IntVar(&replicationFactor, "replication", 3, "replication factor")

	var readFormat string
	readCmd := &cobra.Command{
		Use:   "read <hdfsName> <localDest>",
		Short: "Read a chunked file to a local path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hc, closeFn, err := dialHC(nsAddr)
			if err != nil {
				return err
			}
			defer closeFn()
			return hc.Read(args[0], "."+readFormat, args[1])
		},
	}
	readCmd.Flags().StringVar(&readFormat, "format", "line", "record format extension (line, kv)")

	var deleteFormat string
	deleteCmd := &cobra.Command{
		Use:   "delete <hdfsName>",
		Short: "Delete a chunked file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hc, closeFn, err := dialHC(nsAddr)
			if err != nil {
				return err
			}
			defer closeFn()
			return hc.Delete(args[0], "."+deleteFormat)
		},
	}
	deleteCmd.Flags().StringVar(&deleteFormat, "format", "line", "record format extension (line, kv)")

	nsCmd := &cobra.Command{Use: "name-service", Short: "Name Service administration"}
	nsResetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Discard all file metadata on the Name Service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := nameservice.Dial(nsAddr)
			if err != nil {
				return fmt.Errorf("dial name service %s: %w", nsAddr, err)
			}
			defer ns.Close()
			return ns.Reset()
		},
	}
	nsCmd.AddCommand(nsResetCmd)

	jobCmd := &cobra.Command{Use: "job", Short: "Map/reduce job submission"}
	var userFn, inputFormat, inputFileName, outputFormat, resultPath string
	jobRunCmd := &cobra.Command{
		Use:   "run",
		Short: "Submit a job and wait for it to complete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataDir == "" {
				return fmt.Errorf("--data-dir is required for job run")
			}
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
			hc := hdfsclient.New(hdfsclient.Config{NS: ns})

			logger, err := buildLogger(logLevel, debug)
			if err != nil {
				return err
			}

			jc := jobclient.New(jobclient.Config{NS: ns, JM: jm, HC: hc, DataDir: dataDir, Logger: logger})
			return jc.Run(jobclient.RunOptions{
				UserFn:        userFn,
				InputFormat:   inputFormat,
				InputFileName: inputFileName,
				OutputFormat:  outputFormat,
				ResultPath:    resultPath,
			})
		},
	}
	jobRunCmd.Flags().StringVar(&userFn, "fn", "wordcount", "registered map/reduce function name")
	jobRunCmd.Flags().StringVar(&inputFormat, "input-format", "line", "input file record format")
	jobRunCmd.Flags().StringVar(&inputFileName, "input", "", "full HDFS identity of the input file; empty for a generator job")
	jobRunCmd.Flags().StringVar(&outputFormat, "output-format", "kv", "shuffle/reduce record format emitted by the job function")
	jobRunCmd.Flags().StringVar(&resultPath, "result", "result.kv", "local destination for the finished reduce output")
	jobCmd.AddCommand(jobRunCmd)

	rootCmd.AddCommand(writeCmd, readCmd, deleteCmd, nsCmd, jobCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func dialHC(nsAddr string) (*hdfsclient.Client, func(), error) {
	ns, err := nameservice.Dial(nsAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial name service %s: %w", nsAddr, err)
	}
	return hdfsclient.New(hdfsclient.Config{NS: ns}), func() { ns.Close() }, nil
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
