package nameservice

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotRoundTrip(t *testing.T) {
	files := map[string]*FileData{
		"input.line": {
			FileSize:          2,
			ChunkSize:         16,
			ReplicationFactor: 2,
			ChunkHandles: map[int]map[string]struct{}{
				0: {"dn1:9000": {}, "dn2:9000": {}},
				1: {"dn1:9000": {}},
			},
		},
		"empty.line": {FileSize: 0, ChunkSize: 0, ReplicationFactor: 1, ChunkHandles: map[int]map[string]struct{}{}},
	}

	data, err := marshalSnapshot(files)
	if err != nil {
		t.Fatalf("marshalSnapshot: %v", err)
	}
	got, err := unmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("unmarshalSnapshot: %v", err)
	}

	if len(got) != len(files) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(files))
	}
	in := got["input.line"]
	if in.FileSize != 2 || in.ChunkSize != 16 || in.ReplicationFactor != 2 {
		t.Errorf("input.line fields = %+v", in)
	}
	if len(in.ChunkHandles[0]) != 2 {
		t.Errorf("chunk 0 handles = %v, want 2", in.ChunkHandles[0])
	}
	if _, ok := in.ChunkHandles[0]["dn2:9000"]; !ok {
		t.Errorf("missing dn2:9000 in chunk 0 handles")
	}
}

func TestLoadSnapshotMissingFileIsEmpty(t *testing.T) {
	files, err := loadSnapshot(filepath.Join(t.TempDir(), "absent.bin"))
	if err != nil {
		t.Fatalf("loadSnapshot: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("len(files) = %d, want 0", len(files))
	}
}

func TestLoadSnapshotCorruptIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.bin")
	if err := os.WriteFile(path, []byte("not a snapshot"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadSnapshot(path); err == nil {
		t.Fatal("expected error for corrupt snapshot")
	}
}

func TestNewDiscardsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.bin")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc, err := New(Config{SnapshotPath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()

	svc.mu.RLock()
	n := len(svc.files)
	svc.mu.RUnlock()
	if n != 0 {
		t.Errorf("files = %d, want 0 after discarding corrupt snapshot", n)
	}
}

func TestSnapshotWorkerPersistsAfterMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	svc, err := New(Config{SnapshotPath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer svc.Close()

	svc.NotifyDataNodeAvailability("dn1:9000")
	if err := svc.ChunkWritten("f.line", 0, 16, 1, 0, "dn1:9000"); err != nil {
		t.Fatalf("ChunkWritten: %v", err)
	}

	// The snapshot worker runs asynchronously; reload once it's had a chance
	// to flush by reopening against the same path after closing the service.
	svc.Close()

	reopened, err := New(Config{SnapshotPath: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if _, ok := reopened.entry("f.line"); !ok {
		t.Error("expected f.line to survive a snapshot + reload cycle")
	}
}
