// Package nameservice implements the Name Service: the authoritative catalog
// of files to chunk placements, the live-node registries for Data Nodes and
// Daemons, and the placement policy for new chunks.
//
// Metadata structural mutations (adding or removing a file) are guarded by
// Service.mu; intra-file mutations are guarded by the file's own entry lock,
// matching the chunk manager's per-entity locking shape this package is
// adapted from.
package nameservice

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"distcompute/internal/errs"
	"distcompute/internal/logging"
)

// FileData is the per-file metadata record NS owns.
type FileData struct {
	FileSize          int
	ChunkSize         int64
	ReplicationFactor int
	ChunkHandles      map[int]map[string]struct{}
}

func newFileData(chunkSize int64, replicationFactor int) *FileData {
	return &FileData{
		ChunkSize:         chunkSize,
		ReplicationFactor: replicationFactor,
		ChunkHandles:      make(map[int]map[string]struct{}),
	}
}

// complete reports whether every chunk index in [0, FileSize) has at least
// one recorded replica.
func (f *FileData) complete() bool {
	if f.FileSize != len(f.ChunkHandles) {
		return false
	}
	for k := 0; k < f.FileSize; k++ {
		if len(f.ChunkHandles[k]) == 0 {
			return false
		}
	}
	return true
}

// fileEntry pairs a FileData with the lock guarding its mutation, so
// concurrent updates to different files never contend.
type fileEntry struct {
	mu   sync.Mutex
	data *FileData
}

// EventPublisher receives best-effort notifications of metadata changes.
// A nil EventPublisher is valid; Service treats it as a no-op sink.
type EventPublisher interface {
	Publish(event, fileName string)
}

// Config configures a Service.
type Config struct {
	// SnapshotPath is where the metadata snapshot is persisted. Required.
	SnapshotPath string
	Logger       *slog.Logger
	Bus          EventPublisher
}

// Service is the Name Service. One Service exists per cluster, serving
// requests from every Data Node, HDFS Client, Daemon and Job Client.
type Service struct {
	logger *slog.Logger
	bus    EventPublisher

	mu    sync.RWMutex
	files map[string]*fileEntry

	liveMu        sync.Mutex
	liveDataNodes map[string]struct{}
	liveDaemons   map[string]struct{}

	snapshot *snapshotWorker
}

// New constructs a Service, loading an existing snapshot from cfg.SnapshotPath
// if one is present. A corrupt snapshot is discarded with a logged warning;
// the Service starts with empty metadata in that case.
func New(cfg Config) (*Service, error) {
	if cfg.SnapshotPath == "" {
		return nil, fmt.Errorf("nameservice: SnapshotPath is required")
	}
	logger := logging.Default(cfg.Logger).With("component", "nameservice")

	s := &Service{
		logger:        logger,
		bus:           cfg.Bus,
		files:         make(map[string]*fileEntry),
		liveDataNodes: make(map[string]struct{}),
		liveDaemons:   make(map[string]struct{}),
	}
	s.snapshot = newSnapshotWorker(cfg.SnapshotPath, logger, s.snapshotSource)

	loaded, err := loadSnapshot(cfg.SnapshotPath)
	if err != nil {
		logger.Warn("discarding corrupt snapshot, starting empty", "path", cfg.SnapshotPath, "error", err)
	} else {
		for name, fd := range loaded {
			fd := fd
			s.files[name] = &fileEntry{data: fd}
		}
		logger.Info("loaded snapshot", "path", cfg.SnapshotPath, "files", len(loaded))
	}
	return s, nil
}

// Close stops the background snapshot worker. It does not flush a final
// snapshot; the most recent completed snapshot remains on disk.
func (s *Service) Close() error {
	s.snapshot.stop()
	return nil
}

// publish notifies the event bus, if any, without blocking metadata mutation.
func (s *Service) publish(event, fileName string) {
	if s.bus != nil {
		s.bus.Publish(event, fileName)
	}
}

// --- Live-node registries ---

// NotifyDataNodeAvailability idempotently records addr as a live Data Node.
func (s *Service) NotifyDataNodeAvailability(addr string) error {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	s.liveDataNodes[addr] = struct{}{}
	return nil
}

// NotifyDaemonAvailability idempotently records addr as a live Daemon.
func (s *Service) NotifyDaemonAvailability(addr string) error {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	s.liveDaemons[addr] = struct{}{}
	return nil
}

// GetAvailableDaemons returns a snapshot of the live Daemon set.
func (s *Service) GetAvailableDaemons() ([]string, error) {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	if len(s.liveDaemons) == 0 {
		return nil, errs.ErrNoDaemons
	}
	out := make([]string, 0, len(s.liveDaemons))
	for addr := range s.liveDaemons {
		out = append(out, addr)
	}
	return out, nil
}

func (s *Service) liveDataNodeSnapshot() []string {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	out := make([]string, 0, len(s.liveDataNodes))
	for addr := range s.liveDataNodes {
		out = append(out, addr)
	}
	return out
}

func (s *Service) isLiveDataNode(addr string) bool {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	_, ok := s.liveDataNodes[addr]
	return ok
}

// --- Placement ---

// WriteChunkRequest returns min(r, |liveDataNodes|) distinct host addresses,
// chosen uniformly at random without replacement.
func (s *Service) WriteChunkRequest(r int) ([]string, error) {
	candidates := s.liveDataNodeSnapshot()
	if len(candidates) == 0 {
		return nil, errs.ErrNoDataNodes
	}
	if r > len(candidates) {
		s.logger.Warn("replication factor exceeds live data nodes", "requested", r, "available", len(candidates))
		r = len(candidates)
	}
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	return candidates[:r], nil
}

// --- File lookup helpers ---

func (s *Service) entry(fileName string) (*fileEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.files[fileName]
	return e, ok
}

func (s *Service) entryOrCreate(fileName string, chunkSize int64, replicationFactor int) *fileEntry {
	s.mu.RLock()
	e, ok := s.files[fileName]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.files[fileName]; ok {
		return e
	}
	e = &fileEntry{data: newFileData(chunkSize, replicationFactor)}
	s.files[fileName] = e
	return e
}

func (s *Service) removeEntry(fileName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, fileName)
}

// ReadFileRequest returns one live replica address per chunk index, in
// order, for a complete file.
func (s *Service) ReadFileRequest(fileName string) ([]string, error) {
	e, ok := s.entry(fileName)
	if !ok {
		return nil, errs.ErrUnknownFile
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.data.complete() {
		return nil, errs.ErrIncomplete
	}

	hosts := make([]string, e.data.FileSize)
	for k := 0; k < e.data.FileSize; k++ {
		var chosen string
		for addr := range e.data.ChunkHandles[k] {
			if s.isLiveDataNode(addr) {
				chosen = addr
				break
			}
		}
		if chosen == "" {
			return nil, fmt.Errorf("%w: chunk %d of %s", errs.ErrNoLiveReplica, k, fileName)
		}
		hosts[k] = chosen
	}
	return hosts, nil
}

// DeleteFileRequest returns, for every chunk of fileName, the full set of
// hosts holding a replica -- every (chunk, host) pair must receive its own
// DELETE on the wire, not just the distinct host set. Unavailable replicas
// are logged but not an error. It does not itself mutate metadata; that
// happens via chunkDeleted callbacks once DNs confirm.
func (s *Service) DeleteFileRequest(fileName string) (map[int][]string, error) {
	e, ok := s.entry(fileName)
	if !ok {
		return nil, errs.ErrUnknownFile
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[int][]string, len(e.data.ChunkHandles))
	for k, hosts := range e.data.ChunkHandles {
		addrs := make([]string, 0, len(hosts))
		for addr := range hosts {
			if !s.isLiveDataNode(addr) {
				s.logger.Warn("delete target replica not live", "file", fileName, "chunk", k, "addr", addr)
			}
			addrs = append(addrs, addr)
		}
		out[k] = addrs
	}
	return out, nil
}

// DistinctHosts flattens a DeleteFileRequest result into the distinct set
// of host addresses touched, as a convenience view alongside the
// chunk-addressed map.
func DistinctHosts(chunkHosts map[int][]string) []string {
	seen := make(map[string]struct{})
	for _, hosts := range chunkHosts {
		for _, h := range hosts {
			seen[h] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	return out
}

// --- Mutation callbacks ---

// ChunkWritten idempotently records that server now holds chunkNumber of
// fileName. See the switch below for the rewrite-vs-map-output-update
// distinction.
func (s *Service) ChunkWritten(fileName string, fileSize int, chunkSize int64, replicationFactor int, chunkNumber int, server string) error {
	e := s.entryOrCreate(fileName, chunkSize, replicationFactor)

	e.mu.Lock()
	switch {
	case e.data.ChunkSize == chunkSize:
		// Common case: same signature as before, just add the handle.
	case e.data.FileSize != fileSize || e.data.ReplicationFactor != replicationFactor:
		// chunkSize differs and so does fileSize or replicationFactor: a
		// rewrite of the whole file. Reset everything and start over.
		e.data = newFileData(chunkSize, replicationFactor)
		e.data.FileSize = fileSize
	default:
		// Only chunkSize differs: a map-output write revising the nominal
		// chunk ceiling. Preserve existing handles.
		e.data.ChunkSize = chunkSize
	}
	if e.data.ChunkHandles[chunkNumber] == nil {
		e.data.ChunkHandles[chunkNumber] = make(map[string]struct{})
	}
	e.data.ChunkHandles[chunkNumber][server] = struct{}{}
	e.mu.Unlock()

	s.publish("chunkWritten", fileName)
	s.snapshot.request()
	return nil
}

// AllChunksWritten marks fileName complete. Idempotent.
func (s *Service) AllChunksWritten(fileName string) error {
	e := s.entryOrCreate(fileName, 0, 1)

	e.mu.Lock()
	e.data.FileSize = len(e.data.ChunkHandles)
	e.mu.Unlock()

	s.publish("allChunksWritten", fileName)
	s.snapshot.request()
	return nil
}

// ChunkDeleted removes server from chunkNumber's replica set, pruning the
// chunk and, once empty, the whole file entry.
func (s *Service) ChunkDeleted(fileName string, chunkNumber int, server string) error {
	e, ok := s.entry(fileName)
	if !ok {
		return nil
	}

	e.mu.Lock()
	if hosts, ok := e.data.ChunkHandles[chunkNumber]; ok {
		delete(hosts, server)
		if len(hosts) == 0 {
			delete(e.data.ChunkHandles, chunkNumber)
		}
	}
	empty := len(e.data.ChunkHandles) == 0
	e.mu.Unlock()

	if empty {
		s.removeEntry(fileName)
	}

	s.publish("chunkDeleted", fileName)
	s.snapshot.request()
	return nil
}

// Reset discards all file metadata and triggers a snapshot of the now-empty
// catalog. Live-node registries are untouched -- Data Nodes and Daemons
// keep their heartbeats running and simply start from a clean catalog.
func (s *Service) Reset() error {
	s.mu.Lock()
	s.files = make(map[string]*fileEntry)
	s.mu.Unlock()

	s.logger.Info("name service reset")
	s.snapshot.request()
	return nil
}

// snapshotSource returns a point-in-time copy of the metadata map for the
// background snapshot worker to serialize.
func (s *Service) snapshotSource() map[string]*FileData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*FileData, len(s.files))
	for name, e := range s.files {
		e.mu.Lock()
		cp := *e.data
		handles := make(map[int]map[string]struct{}, len(e.data.ChunkHandles))
		for k, hosts := range e.data.ChunkHandles {
			hcp := make(map[string]struct{}, len(hosts))
			for h := range hosts {
				hcp[h] = struct{}{}
			}
			handles[k] = hcp
		}
		cp.ChunkHandles = handles
		e.mu.Unlock()
		out[name] = &cp
	}
	return out
}
