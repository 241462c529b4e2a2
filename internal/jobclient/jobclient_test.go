package jobclient_test

import (
	"bufio"
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"distcompute/internal/chunkstore/local"
	"distcompute/internal/daemon"
	"distcompute/internal/datanode"
	"distcompute/internal/hdfsclient"
	"distcompute/internal/jobclient"
	"distcompute/internal/jobmanager"
	"distcompute/internal/nameservice"
	"distcompute/internal/record"
)

// singleHostCluster wires an NS, one Data Node backed by a real local-disk
// chunkstore, one Daemon colocated with it via a shared data directory, and
// a Job Manager, all on loopback -- enough to drive a job end to end.
type singleHostCluster struct {
	t       *testing.T
	dataDir string

	ns *nameservice.Client
	jm *jobmanager.Client
	hc *hdfsclient.Client
}

func newSingleHostCluster(t *testing.T) *singleHostCluster {
	t.Helper()
	dataDir := t.TempDir()

	nsSvc, err := nameservice.New(nameservice.Config{SnapshotPath: filepath.Join(t.TempDir(), "snapshot.bin")})
	if err != nil {
		t.Fatalf("nameservice.New: %v", err)
	}
	t.Cleanup(func() { nsSvc.Close() })
	nsLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen NS: %v", err)
	}
	t.Cleanup(func() { nsLn.Close() })
	go nameservice.Serve(nsSvc, nsLn)

	dial := func(name string) *nameservice.Client {
		c, err := nameservice.Dial(nsLn.Addr().String())
		if err != nil {
			t.Fatalf("dial NS for %s: %v", name, err)
		}
		t.Cleanup(func() { c.Close() })
		return c
	}

	store, err := local.NewFactory()(map[string]string{local.ParamDir: dataDir}, nil)
	if err != nil {
		t.Fatalf("local chunkstore: %v", err)
	}

	dnLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen DN: %v", err)
	}
	t.Cleanup(func() { dnLn.Close() })
	dn := datanode.New(datanode.Config{Addr: dnLn.Addr().String(), Store: store, NS: dial("DN")})
	if err := dn.Register(); err != nil {
		t.Fatalf("DN Register: %v", err)
	}
	go dn.Serve(dnLn)

	jmSvc := jobmanager.New(jobmanager.Config{NS: dial("JM-internal")})
	jmLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen JM: %v", err)
	}
	t.Cleanup(func() { jmLn.Close() })
	go jobmanager.Serve(jmSvc, jmLn)

	jmClient, err := jobmanager.Dial(jmLn.Addr().String())
	if err != nil {
		t.Fatalf("dial JM: %v", err)
	}
	t.Cleanup(func() { jmClient.Close() })

	daemonLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen daemon: %v", err)
	}
	t.Cleanup(func() { daemonLn.Close() })
	d := daemon.New(daemon.Config{
		Addr:         daemonLn.Addr().String(),
		DataNodeAddr: dnLn.Addr().String(),
		NS:           dial("daemon-internal"),
		JM:           jmClient,
	})
	if err := d.Register(); err != nil {
		t.Fatalf("daemon Register: %v", err)
	}
	go daemon.Serve(d, daemonLn)

	hc := hdfsclient.New(hdfsclient.Config{NS: dial("HC"), TempDir: t.TempDir()})

	return &singleHostCluster{t: t, dataDir: dataDir, ns: dial("test"), jm: jmClient, hc: hc}
}

func (c *singleHostCluster) writeInput(t *testing.T, hdfsName, contents string) {
	t.Helper()
	localPath := filepath.Join(t.TempDir(), "input.line")
	if err := os.WriteFile(localPath, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	opts := hdfsclient.WriteOptions{
		FormatName:        "line",
		LocalPath:         localPath,
		HDFSName:          hdfsName,
		ChunkSize:         4096,
		ReplicationFactor: 1,
	}
	if err := c.hc.Write(opts); err != nil {
		t.Fatalf("hc.Write: %v", err)
	}
}

func TestJobClientRunsWordCountEndToEnd(t *testing.T) {
	cluster := newSingleHostCluster(t)
	cluster.writeInput(t, "words", "foo bar\nfoo baz\nbar bar\n")

	jc := jobclient.New(jobclient.Config{
		NS:      cluster.ns,
		JM:      cluster.jm,
		HC:      cluster.hc,
		DataDir: cluster.dataDir,
	})

	resultPath := filepath.Join(t.TempDir(), "result.kv")
	err := jc.Run(jobclient.RunOptions{
		UserFn:        "wordcount",
		InputFormat:   "line",
		InputFileName: "words.line",
		OutputFormat:  "kv",
		ResultPath:    resultPath,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	counts := readCounts(t, resultPath)
	want := map[string]int{"foo": 2, "bar": 3, "baz": 1}
	for word, n := range want {
		if counts[word] != n {
			t.Errorf("count[%s] = %d, want %d (all: %v)", word, counts[word], n, counts)
		}
	}
}

func readCounts(t *testing.T, path string) map[string]int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	counts := make(map[string]int)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		kv, err := record.DecodeKV(record.Record{Raw: line})
		if err != nil {
			t.Fatalf("decode result record: %v", err)
		}
		n, err := strconv.Atoi(kv.Value)
		if err != nil {
			t.Fatalf("parse count: %v", err)
		}
		counts[kv.Key] = n
	}
	return counts
}
