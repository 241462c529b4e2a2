// Package hdfsclient is the HDFS Client: a stateless library, used directly
// by end users and by the Job Client, that splits a local file into
// record-aligned chunks, asks the Name Service for placement, and streams
// each chunk to a Data Node; and reassembles a file from its chunks on read.
package hdfsclient

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"distcompute/internal/errs"
	"distcompute/internal/logging"
	"distcompute/internal/nameservice"
	"distcompute/internal/record"
	"distcompute/internal/wire"
)

// Config configures a Client.
type Config struct {
	NS      *nameservice.Client
	Logger  *slog.Logger
	TempDir string // defaults to os.TempDir()
}

// Client is the HDFS Client library.
type Client struct {
	ns      *nameservice.Client
	logger  *slog.Logger
	tempDir string
}

// New constructs a Client from cfg.
func New(cfg Config) *Client {
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Client{
		ns:      cfg.NS,
		logger:  logging.Default(cfg.Logger).With("component", "hdfsclient"),
		tempDir: tempDir,
	}
}

// WriteOptions parameterizes a Write call.
type WriteOptions struct {
	// FormatName selects the record format ("line", "kv") used to split the
	// local file into record-aligned chunks.
	FormatName string
	// LocalPath is the source file on the caller's local filesystem.
	LocalPath string
	// HDFSName is the base file name NS and Data Nodes will know this file
	// by. Its extension is derived from FormatName.
	HDFSName string

	ChunkSize         int64
	ReplicationFactor int
}

func extensionFor(formatName string) string {
	return "." + formatName
}

// Identity returns the full NS-facing identity (base name + extension) that
// opts.HDFSName will be registered under.
func (o WriteOptions) Identity() string {
	return wire.Identity(o.HDFSName, extensionFor(o.FormatName))
}

// Write implements hdfsWrite: record-aligned chunking, placement
// via NS, streaming to the primary replica with the remaining hosts named
// as forwarding peers, and a final allChunksWritten once every chunk has
// been sent.
func (c *Client) Write(opts WriteOptions) error {
	format, err := record.Lookup(opts.FormatName)
	if err != nil {
		return err
	}
	if opts.ReplicationFactor <= 0 {
		opts.ReplicationFactor = 1
	}
	ext := extensionFor(opts.FormatName)
	identity := wire.Identity(opts.HDFSName, ext)

	f, err := os.Open(opts.LocalPath)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", errs.ErrTransport, opts.LocalPath, err)
	}
	reader := format.NewReader(f)
	defer reader.Close()

	chunkNumber := 0
	var pending *record.Record
	var pendingStart int64
	for {
		var first record.Record
		var startIndex int64
		if pending != nil {
			first = *pending
			startIndex = pendingStart
			pending = nil
		} else {
			startIndex = reader.Index()
			r, err := reader.Read()
			if errors.Is(err, record.ErrNoMoreRecords) {
				break
			}
			if err != nil {
				return err
			}
			first = r
		}
		if int64(len(first.Raw)) > opts.ChunkSize {
			return fmt.Errorf("%w: chunk %d", errs.ErrRecordTooLarge, chunkNumber)
		}

		tmpPath, leftover, leftoverStart, err := c.buildChunkFile(format, reader, first, startIndex, opts.ChunkSize)
		if err != nil {
			return err
		}
		pending = leftover
		pendingStart = leftoverStart

		err = c.sendChunk(opts.HDFSName, ext, chunkNumber, opts.ChunkSize, opts.ReplicationFactor, tmpPath)
		os.Remove(tmpPath)
		if err != nil {
			return err
		}
		chunkNumber++
	}

	return c.ns.AllChunksWritten(identity)
}

// buildChunkFile admits first unconditionally, then reads ahead one record
// at a time, admitting each only if doing so keeps the chunk's span since
// startIndex at or under chunkSize. The first record that would cross the
// boundary is still consumed from reader (records can't be unread) but is
// withheld from this chunk and handed back to the caller as leftover, along
// with the stream offset just before it was read (the next chunk's own
// startIndex) -- so it is written exactly once, as the next chunk's first
// record, never here and never twice.
func (c *Client) buildChunkFile(format record.Format, reader record.Reader, first record.Record, startIndex, chunkSize int64) (tmpPath string, leftover *record.Record, leftoverStart int64, err error) {
	tmp, err := os.CreateTemp(c.tempDir, "hdfsclient-write-"+uuid.NewString()+"-*")
	if err != nil {
		return "", nil, 0, fmt.Errorf("%w: create temp chunk file: %v", errs.ErrTransport, err)
	}
	tmpPath = tmp.Name()
	writer := format.NewWriter(tmp)

	if err := writer.Write(first); err != nil {
		writer.Close()
		os.Remove(tmpPath)
		return "", nil, 0, err
	}

	for {
		beforeRead := reader.Index()
		rec, err := reader.Read()
		if errors.Is(err, record.ErrNoMoreRecords) {
			break
		}
		if err != nil {
			writer.Close()
			os.Remove(tmpPath)
			return "", nil, 0, err
		}
		if reader.Index()-startIndex > chunkSize {
			if err := writer.Close(); err != nil {
				os.Remove(tmpPath)
				return "", nil, 0, fmt.Errorf("%w: close temp chunk file: %v", errs.ErrTransport, err)
			}
			return tmpPath, &rec, beforeRead, nil
		}
		if err := writer.Write(rec); err != nil {
			writer.Close()
			os.Remove(tmpPath)
			return "", nil, 0, err
		}
	}

	if err := writer.Close(); err != nil {
		os.Remove(tmpPath)
		return "", nil, 0, fmt.Errorf("%w: close temp chunk file: %v", errs.ErrTransport, err)
	}
	return tmpPath, nil, 0, nil
}

func (c *Client) sendChunk(fileName, extension string, chunkNumber int, chunkSize int64, replicationFactor int, tmpPath string) error {
	hosts, err := c.ns.WriteChunkRequest(replicationFactor)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: read temp chunk file: %v", errs.ErrTransport, err)
	}

	header := wire.WriteHeader{
		FileName:          fileName,
		Extension:         extension,
		ChunkNumber:       chunkNumber,
		ChunkSize:         chunkSize,
		ReplicationFactor: replicationFactor,
		Peers:             hosts[1:],
	}
	return sendWrite(hosts[0], header, data)
}

func sendWrite(addr string, header wire.WriteHeader, data []byte) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", errs.ErrTransport, addr, err)
	}
	defer conn.Close()

	if err := wire.WriteWriteHeader(conn, header); err != nil {
		return fmt.Errorf("%w: write header to %s: %v", errs.ErrTransport, addr, err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("%w: write payload to %s: %v", errs.ErrTransport, addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	// Drain until the Data Node closes, signaling it has finished
	// processing (storing, forwarding, and notifying NS).
	_, err = io.Copy(io.Discard, conn)
	if err != nil {
		return fmt.Errorf("%w: await completion from %s: %v", errs.ErrTransport, addr, err)
	}
	return nil
}

// Read implements hdfsRead: fetches one host's chunk per index
// in parallel, aborts with MissingChunks on any gap, and concatenates the
// chunks in order into localDestPath.
func (c *Client) Read(hdfsName, formatExtension, localDestPath string) error {
	identity := wire.Identity(hdfsName, formatExtension)
	hosts, err := c.ns.ReadFileRequest(identity)
	if err != nil {
		return err
	}

	tmpPaths := make([]string, len(hosts))
	present := make([]bool, len(hosts))

	cleanup := func() {
		for _, p := range tmpPaths {
			if p != "" {
				os.Remove(p)
			}
		}
	}

	var g errgroup.Group
	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			data, ok, err := c.fetchChunk(host, hdfsName, formatExtension, i)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			tmp, err := os.CreateTemp(c.tempDir, "hdfsclient-read-"+uuid.NewString()+"-*")
			if err != nil {
				return fmt.Errorf("%w: create temp chunk file: %v", errs.ErrTransport, err)
			}
			if _, err := tmp.Write(data); err != nil {
				tmp.Close()
				return err
			}
			if err := tmp.Close(); err != nil {
				return err
			}
			tmpPaths[i] = tmp.Name()
			present[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		cleanup()
		return err
	}

	for i, ok := range present {
		if !ok {
			cleanup()
			return fmt.Errorf("%w: chunk %d", errs.ErrMissingChunks, i)
		}
	}

	out, err := os.Create(localDestPath)
	if err != nil {
		cleanup()
		return fmt.Errorf("%w: create %s: %v", errs.ErrTransport, localDestPath, err)
	}
	for _, p := range tmpPaths {
		data, err := os.ReadFile(p)
		if err != nil {
			out.Close()
			cleanup()
			return err
		}
		if _, err := out.Write(data); err != nil {
			out.Close()
			cleanup()
			return err
		}
	}
	if err := out.Close(); err != nil {
		cleanup()
		return err
	}
	cleanup()
	return nil
}

func (c *Client) fetchChunk(addr, fileName, extension string, chunkNumber int) ([]byte, bool, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, false, fmt.Errorf("%w: dial %s: %v", errs.ErrTransport, addr, err)
	}
	defer conn.Close()

	header := wire.ChunkHeader{FileName: fileName, Extension: extension, ChunkNumber: chunkNumber}
	if err := wire.WriteChunkHeader(conn, wire.TagRead, header); err != nil {
		return nil, false, fmt.Errorf("%w: write read header to %s: %v", errs.ErrTransport, addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}

	tag, err := wire.ReadTag(conn)
	if errors.Is(err, io.EOF) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: read tag from %s: %v", errs.ErrTransport, addr, err)
	}
	if tag != wire.TagRead {
		return nil, false, fmt.Errorf("%w: unexpected tag %v from %s", errs.ErrTransport, tag, addr)
	}
	if _, err := wire.ReadChunkHeader(conn); err != nil {
		return nil, false, fmt.Errorf("%w: read chunk header from %s: %v", errs.ErrTransport, addr, err)
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		return nil, false, fmt.Errorf("%w: read payload from %s: %v", errs.ErrTransport, addr, err)
	}
	return data, true, nil
}

// Delete implements hdfsDelete: ask NS which hosts hold which
// chunks, then issue a best-effort DELETE to every (chunk, host) pair. No
// confirmation is awaited; DNs' own chunkDeleted callbacks drive metadata
// cleanup.
func (c *Client) Delete(hdfsName, formatExtension string) error {
	identity := wire.Identity(hdfsName, formatExtension)
	chunkHosts, err := c.ns.DeleteFileRequest(identity)
	if err != nil {
		return err
	}

	for chunkNumber, hosts := range chunkHosts {
		for _, host := range hosts {
			if err := sendDelete(host, hdfsName, formatExtension, chunkNumber); err != nil {
				c.logger.Warn("delete failed", "host", host, "file", hdfsName, "chunk", chunkNumber, "error", err)
			}
		}
	}
	return nil
}

func sendDelete(addr, fileName, extension string, chunkNumber int) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", errs.ErrTransport, addr, err)
	}
	defer conn.Close()

	header := wire.ChunkHeader{FileName: fileName, Extension: extension, ChunkNumber: chunkNumber}
	if err := wire.WriteChunkHeader(conn, wire.TagDelete, header); err != nil {
		return fmt.Errorf("%w: write delete header to %s: %v", errs.ErrTransport, addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	_, err = io.Copy(io.Discard, conn)
	return err
}
