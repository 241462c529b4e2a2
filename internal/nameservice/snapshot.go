package nameservice

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// wireFileData is the on-disk shape of FileData. ChunkHandles is encoded as
// a slice of replica addresses per chunk rather than a set, since msgpack
// has no native set type.
type wireFileData struct {
	FileSize          int
	ChunkSize         int64
	ReplicationFactor int
	ChunkHandles      map[int][]string
}

func toWire(fd *FileData) wireFileData {
	handles := make(map[int][]string, len(fd.ChunkHandles))
	for k, hosts := range fd.ChunkHandles {
		addrs := make([]string, 0, len(hosts))
		for addr := range hosts {
			addrs = append(addrs, addr)
		}
		handles[k] = addrs
	}
	return wireFileData{
		FileSize:          fd.FileSize,
		ChunkSize:         fd.ChunkSize,
		ReplicationFactor: fd.ReplicationFactor,
		ChunkHandles:      handles,
	}
}

func fromWire(w wireFileData) *FileData {
	handles := make(map[int]map[string]struct{}, len(w.ChunkHandles))
	for k, addrs := range w.ChunkHandles {
		set := make(map[string]struct{}, len(addrs))
		for _, a := range addrs {
			set[a] = struct{}{}
		}
		handles[k] = set
	}
	return &FileData{
		FileSize:          w.FileSize,
		ChunkSize:         w.ChunkSize,
		ReplicationFactor: w.ReplicationFactor,
		ChunkHandles:      handles,
	}
}

// marshalSnapshot serializes a fileName -> FileData map to msgpack, then
// compresses it with zstd.
func marshalSnapshot(files map[string]*FileData) ([]byte, error) {
	wire := make(map[string]wireFileData, len(files))
	for name, fd := range files {
		wire[name] = toWire(fd)
	}
	packed, err := msgpack.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(packed, nil), nil
}

// unmarshalSnapshot is the inverse of marshalSnapshot.
func unmarshalSnapshot(compressed []byte) (map[string]*FileData, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot decoder: %w", err)
	}
	defer dec.Close()
	packed, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}

	var wire map[string]wireFileData
	if err := msgpack.Unmarshal(packed, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	files := make(map[string]*FileData, len(wire))
	for name, w := range wire {
		files[name] = fromWire(w)
	}
	return files, nil
}

// loadSnapshot reads and deserializes the snapshot at path. A missing file
// is not an error: it returns an empty map.
func loadSnapshot(path string) (map[string]*FileData, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]*FileData{}, nil
	}
	if err != nil {
		return nil, err
	}
	return unmarshalSnapshot(data)
}

// writeSnapshotFile atomically replaces the snapshot at path via a
// temp-file-then-rename, so a crash mid-write never leaves a corrupt
// snapshot behind.
func writeSnapshotFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// snapshotWorker is the single long-lived background task that persists
// metadata snapshots. Requests while a snapshot is in flight collapse into
// at most one follow-up run.
type snapshotWorker struct {
	path   string
	logger *slog.Logger
	source func() map[string]*FileData

	mu       sync.Mutex
	pending  bool
	running  bool
	signal   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newSnapshotWorker(path string, logger *slog.Logger, source func() map[string]*FileData) *snapshotWorker {
	w := &snapshotWorker{
		path:   path,
		logger: logger,
		source: source,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

// request signals that metadata changed and a snapshot should run. It never
// blocks and never queues more than one follow-up.
func (w *snapshotWorker) request() {
	w.mu.Lock()
	if w.running {
		w.pending = true
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *snapshotWorker) loop() {
	for range w.signal {
		w.runOnce()

		w.mu.Lock()
		for w.pending {
			w.pending = false
			w.mu.Unlock()
			w.runOnce()
			w.mu.Lock()
		}
		w.running = false
		w.mu.Unlock()
	}
	close(w.done)
}

func (w *snapshotWorker) runOnce() {
	files := w.source()
	data, err := marshalSnapshot(files)
	if err != nil {
		w.logger.Error("snapshot marshal failed", "error", err)
		return
	}
	if err := writeSnapshotFile(w.path, data); err != nil {
		w.logger.Error("snapshot write failed", "path", w.path, "error", err)
		return
	}
	w.logger.Debug("snapshot written", "path", w.path, "files", len(files))
}

func (w *snapshotWorker) stop() {
	w.stopOnce.Do(func() { close(w.signal) })
	<-w.done
}
