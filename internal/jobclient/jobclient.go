// Package jobclient implements the Job Client: a thin, single-tasked-per-job
// orchestrator that submits a job to the Job Manager, resolves chunk
// locations and Daemon locality from the Name Service, dispatches one map
// task per chunk (or per live Daemon for a generator job), awaits the
// completion barrier, and finally runs the reduce step locally.
package jobclient

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"distcompute/internal/chunkstore"
	"distcompute/internal/daemon"
	"distcompute/internal/errs"
	"distcompute/internal/hdfsclient"
	"distcompute/internal/jobmanager"
	"distcompute/internal/logging"
	"distcompute/internal/mapreduce"
	"distcompute/internal/nameservice"
	"distcompute/internal/record"
	"distcompute/internal/wire"
)

// Config configures a Client.
type Config struct {
	NS *nameservice.Client
	JM *jobmanager.Client
	HC *hdfsclient.Client

	// DataDir is the local chunk-storage directory shared, by deployment
	// convention, by every Data Node and Daemon in the cluster. The Job
	// Client uses it to construct the local path a Daemon must read a
	// chunk's input from or write a map task's output to -- the Daemon
	// that receives the runMap call is always colocated on the same host
	// as the chunk, so the same directory resolves there too.
	DataDir string

	// PollInterval is the Job Manager barrier's polling cadence. Defaults
	// to 100ms.
	PollInterval time.Duration

	Logger *slog.Logger
}

// Client is the Job Client.
type Client struct {
	ns           *nameservice.Client
	jm           *jobmanager.Client
	hc           *hdfsclient.Client
	dataDir      string
	pollInterval time.Duration
	logger       *slog.Logger
}

// New constructs a Client from cfg.
func New(cfg Config) *Client {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Client{
		ns:           cfg.NS,
		jm:           cfg.JM,
		hc:           cfg.HC,
		dataDir:      cfg.DataDir,
		pollInterval: interval,
		logger:       logging.Default(cfg.Logger).With("component", "jobclient"),
	}
}

// RunOptions parameterizes a job submission.
type RunOptions struct {
	// UserFn is the name a mapreduce.Func is registered under.
	UserFn string
	// InputFormat is the record format of the input file. It is recorded
	// with the job on the Job Manager and, for a file-input job, gives the
	// extension of each input chunk's local path. The per-map shuffle
	// output uses OutputFormat, not InputFormat.
	InputFormat string
	// InputFileName is the full HDFS identity of the job's input file, or
	// empty for a generator job (parallelism = number of live Daemons).
	InputFileName string
	// OutputFormat is the record format userFn's Map emits and Reduce
	// consumes -- the shuffle format. It is a property of userFn, not of
	// the input file, and is typically "kv".
	OutputFormat string
	// ResultPath is the local destination for the finished reduce output.
	ResultPath string
}

// Run submits and drives a job to completion end to end, returning once the
// reduce step has written ResultPath.
func (c *Client) Run(opts RunOptions) error {
	fn, err := mapreduce.Lookup(opts.UserFn)
	if err != nil {
		return err
	}

	jobID, err := c.jm.AddJob(opts.UserFn, opts.InputFormat, opts.InputFileName)
	if err != nil {
		return fmt.Errorf("addJob: %w", err)
	}
	if err := c.jm.StartJob(jobID); err != nil {
		return fmt.Errorf("startJob: %w", err)
	}
	c.logger.Info("job started", "jobId", jobID, "userFn", opts.UserFn)

	daemons, err := c.ns.GetAvailableDaemons()
	if err != nil {
		return fmt.Errorf("availableDaemons: %w", err)
	}

	var chunkHosts []string
	if opts.InputFileName != "" {
		chunkHosts, err = c.ns.ReadFileRequest(opts.InputFileName)
		if err != nil {
			return fmt.Errorf("readFileRequest: %w", err)
		}
	}
	nbMaps := len(daemons)
	if opts.InputFileName != "" {
		nbMaps = len(chunkHosts)
	}

	shuffleBase := fmt.Sprintf("job-%d-shuffle-%s", jobID, uuid.NewString())
	shuffleExt := "." + opts.OutputFormat
	shuffleName := wire.Identity(shuffleBase, shuffleExt)

	inputExt := "." + opts.InputFormat
	inputBase := strings.TrimSuffix(opts.InputFileName, inputExt)

	for i := 0; i < nbMaps; i++ {
		if err := c.jm.SubmitMap(jobID, i); err != nil {
			return fmt.Errorf("submitMap(%d): %w", i, err)
		}

		var targetHost string
		if opts.InputFileName != "" {
			targetHost, err = matchDaemon(daemons, chunkHosts[i])
		} else {
			targetHost = daemons[i]
		}
		if err != nil {
			return err
		}

		var inputSpec string
		if opts.InputFileName != "" {
			key := chunkstore.Key{FileName: inputBase, ChunkNumber: i, Extension: inputExt}
			inputSpec = c.localPath(key)
		}
		outputKey := chunkstore.Key{FileName: shuffleBase, ChunkNumber: i, Extension: shuffleExt}
		outputSpec := c.localPath(outputKey)

		dc, err := daemon.Dial(targetHost)
		if err != nil {
			return err
		}
		err = dc.RunMap(opts.UserFn, inputSpec, outputSpec, shuffleName, jobID, i)
		dc.Close()
		if err != nil {
			return fmt.Errorf("runMap(%d) on %s: %w", i, targetHost, err)
		}
	}

	if err := c.awaitBarrier(jobID, nbMaps); err != nil {
		return err
	}

	if err := c.ns.AllChunksWritten(shuffleName); err != nil {
		return fmt.Errorf("allChunksWritten: %w", err)
	}

	localTmp, err := os.CreateTemp("", "jobclient-shuffle-*"+shuffleExt)
	if err != nil {
		return fmt.Errorf("%w: create shuffle temp file: %v", errs.ErrTransport, err)
	}
	localTmp.Close()
	defer os.Remove(localTmp.Name())

	if err := c.hc.Read(shuffleBase, shuffleExt, localTmp.Name()); err != nil {
		return fmt.Errorf("hdfsRead shuffle output: %w", err)
	}

	return c.reduce(fn, opts.OutputFormat, localTmp.Name(), opts.ResultPath)
}

// matchDaemon returns the element of daemons whose host (ignoring port)
// matches chunkHost's host, per the exact-hostname locality rule; there is
// no fallback to a non-local replica.
func matchDaemon(daemons []string, chunkHost string) (string, error) {
	wantHost, _, err := net.SplitHostPort(chunkHost)
	if err != nil {
		wantHost = chunkHost
	}
	for _, d := range daemons {
		dHost, _, err := net.SplitHostPort(d)
		if err != nil {
			dHost = d
		}
		if dHost == wantHost {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: no daemon on host of %s", errs.ErrLocalityUnsatisfied, chunkHost)
}

func (c *Client) localPath(key chunkstore.Key) string {
	return c.dataDir + string(os.PathSeparator) + key.Name()
}

func (c *Client) awaitBarrier(jobID int64, nbMaps int) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for range ticker.C {
		count, err := c.jm.CompletedMaps(jobID)
		if err != nil {
			return fmt.Errorf("completedMaps: %w", err)
		}
		if count >= nbMaps {
			return nil
		}
	}
	return nil
}

func (c *Client) reduce(fn mapreduce.Func, format, shufflePath, resultPath string) error {
	rf, err := record.Lookup(format)
	if err != nil {
		return err
	}

	in, err := os.Open(shufflePath)
	if err != nil {
		return fmt.Errorf("%w: open shuffle output: %v", errs.ErrTransport, err)
	}
	reader := rf.NewReader(in)
	defer reader.Close()

	out, err := os.Create(resultPath)
	if err != nil {
		return fmt.Errorf("%w: create result file %s: %v", errs.ErrTransport, resultPath, err)
	}
	writer := rf.NewWriter(out)

	if err := fn.Reduce(reader, writer); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}
