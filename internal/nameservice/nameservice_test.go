package nameservice

import (
	"errors"
	"path/filepath"
	"testing"

	"distcompute/internal/errs"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(Config{SnapshotPath: filepath.Join(t.TempDir(), "snapshot.bin")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestWriteChunkRequestDistinctAndBounded(t *testing.T) {
	svc := newTestService(t)
	for _, addr := range []string{"dn1:9000", "dn2:9000", "dn3:9000"} {
		if err := svc.NotifyDataNodeAvailability(addr); err != nil {
			t.Fatalf("NotifyDataNodeAvailability: %v", err)
		}
	}

	hosts, err := svc.WriteChunkRequest(2)
	if err != nil {
		t.Fatalf("WriteChunkRequest: %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("len(hosts) = %d, want 2", len(hosts))
	}
	if hosts[0] == hosts[1] {
		t.Errorf("hosts not distinct: %v", hosts)
	}

	// r exceeds live count: returns what's available, no error.
	hosts, err = svc.WriteChunkRequest(10)
	if err != nil {
		t.Fatalf("WriteChunkRequest(10): %v", err)
	}
	if len(hosts) != 3 {
		t.Errorf("len(hosts) = %d, want 3", len(hosts))
	}
}

func TestWriteChunkRequestNoDataNodes(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.WriteChunkRequest(1); !errors.Is(err, errs.ErrNoDataNodes) {
		t.Fatalf("err = %v, want ErrNoDataNodes", err)
	}
}

func TestNotifyDataNodeAvailabilityIdempotent(t *testing.T) {
	svc := newTestService(t)
	svc.NotifyDataNodeAvailability("dn1:9000")
	svc.NotifyDataNodeAvailability("dn1:9000")
	if got := len(svc.liveDataNodeSnapshot()); got != 1 {
		t.Fatalf("liveDataNodes size = %d, want 1", got)
	}
}

func TestChunkWrittenAndReadFileRequest(t *testing.T) {
	svc := newTestService(t)
	svc.NotifyDataNodeAvailability("dn1:9000")

	if err := svc.ChunkWritten("input.line", 0, 16, 1, 0, "dn1:9000"); err != nil {
		t.Fatalf("ChunkWritten(0): %v", err)
	}
	if err := svc.ChunkWritten("input.line", 0, 16, 1, 1, "dn1:9000"); err != nil {
		t.Fatalf("ChunkWritten(1): %v", err)
	}
	if err := svc.AllChunksWritten("input.line"); err != nil {
		t.Fatalf("AllChunksWritten: %v", err)
	}

	hosts, err := svc.ReadFileRequest("input.line")
	if err != nil {
		t.Fatalf("ReadFileRequest: %v", err)
	}
	if len(hosts) != 2 || hosts[0] != "dn1:9000" || hosts[1] != "dn1:9000" {
		t.Errorf("hosts = %v, want [dn1:9000 dn1:9000]", hosts)
	}

	// Idempotent.
	if err := svc.AllChunksWritten("input.line"); err != nil {
		t.Fatalf("AllChunksWritten (second call): %v", err)
	}
}

func TestReadFileRequestUnknownFile(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.ReadFileRequest("nope"); !errors.Is(err, errs.ErrUnknownFile) {
		t.Fatalf("err = %v, want ErrUnknownFile", err)
	}
}

func TestReadFileRequestIncomplete(t *testing.T) {
	svc := newTestService(t)
	svc.NotifyDataNodeAvailability("dn1:9000")
	svc.ChunkWritten("f.line", 0, 16, 1, 0, "dn1:9000")
	svc.ChunkWritten("f.line", 0, 16, 1, 1, "dn1:9000")
	// FileSize is never finalized via AllChunksWritten, so it stays 0 while
	// two handles exist -- FileSize != len(ChunkHandles), hence incomplete.

	if _, err := svc.ReadFileRequest("f.line"); !errors.Is(err, errs.ErrIncomplete) {
		t.Fatalf("err = %v, want ErrIncomplete", err)
	}
}

func TestReadFileRequestNoLiveReplica(t *testing.T) {
	svc := newTestService(t)
	svc.NotifyDataNodeAvailability("dn1:9000")
	svc.ChunkWritten("f.line", 0, 16, 1, 0, "dn1:9000")
	svc.AllChunksWritten("f.line")

	// dn1 goes away: replace the live set with nothing.
	svc.liveMu.Lock()
	svc.liveDataNodes = map[string]struct{}{}
	svc.liveMu.Unlock()

	if _, err := svc.ReadFileRequest("f.line"); !errors.Is(err, errs.ErrNoLiveReplica) {
		t.Fatalf("err = %v, want ErrNoLiveReplica", err)
	}
}

func TestChunkWrittenRewriteResetsHandles(t *testing.T) {
	svc := newTestService(t)
	svc.NotifyDataNodeAvailability("dn1:9000")

	svc.ChunkWritten("f.line", 0, 16, 1, 0, "dn1:9000")
	svc.ChunkWritten("f.line", 0, 16, 1, 1, "dn1:9000")
	svc.AllChunksWritten("f.line")

	e, _ := svc.entry("f.line")
	e.mu.Lock()
	before := len(e.data.ChunkHandles)
	e.mu.Unlock()
	if before != 2 {
		t.Fatalf("before rewrite: %d handles, want 2", before)
	}

	// chunkSize changes AND replicationFactor changes: a rewrite.
	if err := svc.ChunkWritten("f.line", 0, 32, 2, 0, "dn1:9000"); err != nil {
		t.Fatalf("ChunkWritten rewrite: %v", err)
	}

	e, _ = svc.entry("f.line")
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.data.ChunkHandles) != 1 {
		t.Errorf("after rewrite: %d handles, want 1", len(e.data.ChunkHandles))
	}
	if e.data.ChunkSize != 32 || e.data.ReplicationFactor != 2 {
		t.Errorf("rewrite did not update signature: %+v", e.data)
	}
}

func TestChunkWrittenMapOutputUpdatePreservesHandles(t *testing.T) {
	svc := newTestService(t)
	svc.NotifyDataNodeAvailability("dn1:9000")

	svc.ChunkWritten("out.kv", 0, 16, 1, 0, "dn1:9000")
	svc.ChunkWritten("out.kv", 0, 16, 1, 1, "dn1:9000")

	// Only chunkSize differs: preserve existing handles, update chunkSize.
	if err := svc.ChunkWritten("out.kv", 0, 64, 1, 2, "dn1:9000"); err != nil {
		t.Fatalf("ChunkWritten map-output update: %v", err)
	}

	e, _ := svc.entry("out.kv")
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.data.ChunkHandles) != 3 {
		t.Errorf("handles = %d, want 3 (preserved)", len(e.data.ChunkHandles))
	}
	if e.data.ChunkSize != 64 {
		t.Errorf("ChunkSize = %d, want 64", e.data.ChunkSize)
	}
}

func TestAllChunksWrittenEmptyFile(t *testing.T) {
	svc := newTestService(t)
	if err := svc.AllChunksWritten("empty.line"); err != nil {
		t.Fatalf("AllChunksWritten: %v", err)
	}
	e, ok := svc.entry("empty.line")
	if !ok {
		t.Fatal("expected FileData to exist for empty file")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.data.FileSize != 0 {
		t.Errorf("FileSize = %d, want 0", e.data.FileSize)
	}
	if e.data.ReplicationFactor != 1 {
		t.Errorf("ReplicationFactor = %d, want 1", e.data.ReplicationFactor)
	}
}

func TestChunkDeletedRemovesEmptyFile(t *testing.T) {
	svc := newTestService(t)
	svc.NotifyDataNodeAvailability("dn1:9000")
	svc.ChunkWritten("f.line", 0, 16, 1, 0, "dn1:9000")
	svc.AllChunksWritten("f.line")

	if err := svc.ChunkDeleted("f.line", 0, "dn1:9000"); err != nil {
		t.Fatalf("ChunkDeleted: %v", err)
	}
	if _, ok := svc.entry("f.line"); ok {
		t.Error("expected FileData to be removed once last handle is deleted")
	}
}

func TestDeleteFileRequestUnknownFile(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.DeleteFileRequest("nope"); !errors.Is(err, errs.ErrUnknownFile) {
		t.Fatalf("err = %v, want ErrUnknownFile", err)
	}
}

func TestGetAvailableDaemonsNoDaemons(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.GetAvailableDaemons(); !errors.Is(err, errs.ErrNoDaemons) {
		t.Fatalf("err = %v, want ErrNoDaemons", err)
	}
}

func TestGetAvailableDaemons(t *testing.T) {
	svc := newTestService(t)
	svc.NotifyDaemonAvailability("host-a:9100")
	svc.NotifyDaemonAvailability("host-b:9100")
	daemons, err := svc.GetAvailableDaemons()
	if err != nil {
		t.Fatalf("GetAvailableDaemons: %v", err)
	}
	if len(daemons) != 2 {
		t.Errorf("len(daemons) = %d, want 2", len(daemons))
	}
}

func TestResetClearsFileMetadataKeepsLiveNodes(t *testing.T) {
	svc := newTestService(t)
	svc.NotifyDataNodeAvailability("host-a:9100")
	if err := svc.ChunkWritten("f.line", 0, 4096, 1, 0, "host-a:9100"); err != nil {
		t.Fatalf("ChunkWritten: %v", err)
	}

	if err := svc.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if _, err := svc.ReadFileRequest("f.line"); !errors.Is(err, errs.ErrUnknownFile) {
		t.Fatalf("ReadFileRequest after reset: err = %v, want ErrUnknownFile", err)
	}
	if !svc.isLiveDataNode("host-a:9100") {
		t.Errorf("Reset should not clear the live Data Node registry")
	}
}
