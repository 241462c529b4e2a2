// Package daemon implements the Daemon: a per-host worker that registers
// with the Name Service and runs map tasks asynchronously on behalf of the
// Job Client, reporting completion to the Job Manager. Daemons do not
// coordinate with one another; each is a stateless worker.
package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"distcompute/internal/errs"
	"distcompute/internal/jobmanager"
	"distcompute/internal/logging"
	"distcompute/internal/mapreduce"
	"distcompute/internal/nameservice"
	"distcompute/internal/record"
)

// Config configures a Server.
type Config struct {
	// Addr is the address this Daemon advertises to the Name Service, and
	// the locality key the Job Client matches chunk hosts against.
	Addr string

	// DataNodeAddr is the address of the Data Node colocated with this
	// Daemon on the same host. A map task's output is written straight to
	// local disk rather than streamed over the wire protocol, so the Name
	// Service must learn of it under a host that can actually serve a
	// later READ -- the colocated Data Node, not this Daemon's own RPC
	// address. Required only for jobs that produce output (i.e. all of
	// them, per the current job model).
	DataNodeAddr string

	NS     *nameservice.Client
	JM     *jobmanager.Client
	Logger *slog.Logger
}

// Server is a Daemon.
type Server struct {
	addr     string
	dnAddr   string
	ns       *nameservice.Client
	jm       *jobmanager.Client
	logger   *slog.Logger
}

// New constructs a Server from cfg.
func New(cfg Config) *Server {
	return &Server{
		addr:     cfg.Addr,
		dnAddr:   cfg.DataNodeAddr,
		ns:       cfg.NS,
		jm:       cfg.JM,
		logger:   logging.Default(cfg.Logger).With("component", "daemon", "addr", cfg.Addr),
	}
}

// Register announces this Daemon's availability to the Name Service.
func (s *Server) Register() error {
	return s.ns.NotifyDaemonAvailability(s.addr)
}

func formatFromPath(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

// RunMap runs userFn's Map step against inputSpec (a local file path, or
// empty for a generator task), writing to outputSpec (a local file path),
// then registers outputSpec with the Name Service as chunk mapIndex of
// outputFileName and reports completion to the Job Manager. It returns
// immediately to the caller; the map itself executes on its own goroutine,
// matching the "synchronous from JC's viewpoint but executed asynchronously"
// contract.
func (s *Server) RunMap(userFn, inputSpec, outputSpec, outputFileName string, jobID int64, mapIndex int) error {
	fn, err := mapreduce.Lookup(userFn)
	if err != nil {
		return err
	}
	go s.runMap(fn, inputSpec, outputSpec, outputFileName, jobID, mapIndex)
	return nil
}

func (s *Server) runMap(fn mapreduce.Func, inputSpec, outputSpec, outputFileName string, jobID int64, mapIndex int) {
	if err := s.execMap(fn, inputSpec, outputSpec, outputFileName, mapIndex); err != nil {
		s.logger.Error("map task failed", "jobId", jobID, "mapIndex", mapIndex, "error", err)
		return
	}
	if err := s.jm.MapCompleted(jobID, mapIndex); err != nil {
		s.logger.Error("mapCompleted callback failed", "jobId", jobID, "mapIndex", mapIndex, "error", err)
	}
}

func (s *Server) execMap(fn mapreduce.Func, inputSpec, outputSpec, outputFileName string, mapIndex int) error {
	var reader record.Reader // nil in generator mode; fn must not call Read on it
	if inputSpec != "" {
		in, err := os.Open(inputSpec)
		if err != nil {
			return fmt.Errorf("%w: open map input %s: %v", errs.ErrTransport, inputSpec, err)
		}
		format, err := record.Lookup(formatFromPath(inputSpec))
		if err != nil {
			in.Close()
			return err
		}
		reader = format.NewReader(in)
		defer reader.Close()
	}

	out, err := os.Create(outputSpec)
	if err != nil {
		return fmt.Errorf("%w: create map output %s: %v", errs.ErrTransport, outputSpec, err)
	}
	outFormat, err := record.Lookup(formatFromPath(outputSpec))
	if err != nil {
		out.Close()
		return err
	}
	writer := outFormat.NewWriter(out)

	if err := fn.Map(reader, writer); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	// The map output never travels the wire protocol -- it is already a
	// file on the colocated Data Node's local disk. Register it under that
	// Data Node's address so a later hdfsRead can serve it normally.
	// outputFileName is the caller-supplied full NS identity (name plus
	// extension); a single replica and no chunk-size ceiling are enough
	// for shuffle output, which is never itself re-chunked.
	return s.ns.ChunkWritten(outputFileName, 0, 0, 1, mapIndex, s.dnAddr)
}
