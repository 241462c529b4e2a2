// Package datanode implements the Data Node: a long-lived TCP server that
// persists chunks to a local chunkstore.Store, forwards writes to replica
// peers, and serves reads and deletes over the framed socket protocol in
// internal/wire.
package datanode

import (
	"context"
	"io"
	"log/slog"
	"net"

	"golang.org/x/time/rate"

	"distcompute/internal/chunkstore"
	"distcompute/internal/logging"
	"distcompute/internal/nameservice"
	"distcompute/internal/wire"
)

// Config configures a Server.
type Config struct {
	// Addr is the address this Data Node advertises to the Name Service and
	// uses as the "server" field recorded against chunk handles.
	Addr string

	Store  chunkstore.Store
	NS     *nameservice.Client
	Logger *slog.Logger

	// AcceptRate bounds incoming connections per second. Zero disables
	// limiting.
	AcceptRate  rate.Limit
	AcceptBurst int
}

// Server is a Data Node.
type Server struct {
	addr   string
	store  chunkstore.Store
	ns     *nameservice.Client
	logger *slog.Logger

	limiter *rate.Limiter
	paths   *pathLocker
}

// New constructs a Server from cfg.
func New(cfg Config) *Server {
	var limiter *rate.Limiter
	if cfg.AcceptRate > 0 {
		burst := cfg.AcceptBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(cfg.AcceptRate, burst)
	}
	return &Server{
		addr:    cfg.Addr,
		store:   cfg.Store,
		ns:      cfg.NS,
		logger:  logging.Default(cfg.Logger).With("component", "datanode", "addr", cfg.Addr),
		limiter: limiter,
		paths:   newPathLocker(),
	}
}

// Register announces this Data Node's availability to the Name Service.
// Called once at startup, and again on every heartbeat tick.
func (s *Server) Register() error {
	return s.ns.NotifyDataNodeAvailability(s.addr)
}

// Serve accepts connections on ln until ln is closed or Accept returns an
// error. Each connection carries exactly one operation and is handled on
// its own goroutine.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(context.Background()); err != nil {
				conn.Close()
				continue
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	tag, err := wire.ReadTag(conn)
	if err != nil {
		if err != io.EOF {
			s.logger.Debug("read tag failed", "error", err)
		}
		return
	}

	switch tag {
	case wire.TagWrite:
		s.handleWrite(conn)
	case wire.TagRead:
		s.handleRead(conn)
	case wire.TagDelete:
		s.handleDelete(conn)
	default:
		s.logger.Warn("unknown tag", "tag", tag)
	}
}

func (s *Server) handleWrite(conn net.Conn) {
	header, err := wire.ReadWriteHeader(conn)
	if err != nil {
		s.logger.Warn("read write header failed", "error", err)
		return
	}

	payload, err := io.ReadAll(conn)
	if err != nil {
		s.logger.Warn("read write payload failed", "file", header.FileName, "chunk", header.ChunkNumber, "error", err)
		return
	}

	key := chunkstore.Key{FileName: header.FileName, ChunkNumber: header.ChunkNumber, Extension: header.Extension}

	unlock := s.paths.lock(key.Name())
	err = s.store.Put(key, payload)
	unlock()
	if err != nil {
		// Fatal local-write failure: close without an NS callback so the
		// client sees the connection drop and treats it as a failed write.
		s.logger.Error("local write failed", "key", key.Name(), "error", err)
		return
	}

	if len(header.Peers) > 0 {
		s.forwardToPeers(header, payload)
	}

	identity := wire.Identity(header.FileName, header.Extension)
	if err := s.ns.ChunkWritten(identity, 0, header.ChunkSize, header.ReplicationFactor, header.ChunkNumber, s.addr); err != nil {
		s.logger.Error("chunkWritten callback failed", "key", key.Name(), "error", err)
	}
}

func (s *Server) handleRead(conn net.Conn) {
	header, err := wire.ReadChunkHeader(conn)
	if err != nil {
		s.logger.Warn("read chunk header failed", "error", err)
		return
	}

	key := chunkstore.Key{FileName: header.FileName, ChunkNumber: header.ChunkNumber, Extension: header.Extension}

	unlock := s.paths.lock(key.Name())
	data, err := s.store.Get(key)
	unlock()
	if err != nil {
		if err != chunkstore.ErrNotFound {
			s.logger.Warn("read local chunk failed", "key", key.Name(), "error", err)
		}
		// Missing chunk: close without a payload.
		return
	}

	if err := wire.WriteChunkHeader(conn, wire.TagRead, header); err != nil {
		s.logger.Warn("write read header failed", "key", key.Name(), "error", err)
		return
	}
	if _, err := conn.Write(data); err != nil {
		s.logger.Warn("write read payload failed", "key", key.Name(), "error", err)
	}
}

func (s *Server) handleDelete(conn net.Conn) {
	header, err := wire.ReadChunkHeader(conn)
	if err != nil {
		s.logger.Warn("read chunk header failed", "error", err)
		return
	}

	key := chunkstore.Key{FileName: header.FileName, ChunkNumber: header.ChunkNumber, Extension: header.Extension}

	unlock := s.paths.lock(key.Name())
	err = s.store.Delete(key)
	unlock()
	if err != nil && err != chunkstore.ErrNotFound {
		s.logger.Warn("local delete failed", "key", key.Name(), "error", err)
		return
	}

	identity := wire.Identity(header.FileName, header.Extension)
	if err := s.ns.ChunkDeleted(identity, header.ChunkNumber, s.addr); err != nil {
		s.logger.Error("chunkDeleted callback failed", "key", key.Name(), "error", err)
	}
}

