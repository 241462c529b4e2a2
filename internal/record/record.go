// Package record is the record-format abstraction treated as an
// opaque "record stream" collaborator: the HDFS Client never looks inside a
// record, only asks the format for the next whole record and the current
// byte offset so it can decide where a chunk boundary falls. The Daemon
// feeds the same Reader/Writer pair to a user map/reduce function.
package record

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNoMoreRecords is returned by Reader.Read when the stream is exhausted.
var ErrNoMoreRecords = errors.New("no more records")

// Record is one opaque record; its interpretation (a text line, a key-value
// pair, ...) is owned entirely by the format that produced it.
type Record struct {
	Raw []byte
}

// Reader reads whole records from a byte stream.
type Reader interface {
	// Read returns the next record, or ErrNoMoreRecords at end of stream.
	Read() (Record, error)
	// Index returns the byte offset immediately after the last record
	// returned by Read.
	Index() int64
	Close() error
}

// Writer appends whole records to a byte stream.
type Writer interface {
	Write(Record) error
	Close() error
}

// Format opens readers and writers for one record layout, keyed by name
// ("line", "kv") in the Registry below.
type Format interface {
	Name() string
	NewReader(io.ReadCloser) Reader
	NewWriter(io.WriteCloser) Writer
}

// registry is the process-wide set of known formats, analogous to the
// teacher's factory-map-by-name pattern (orchestrator.Factories) generalized
// to record formats instead of chunk managers.
var registry = map[string]Format{}

// Register adds a format to the registry. Call from an init() in the
// format's own file.
func Register(f Format) {
	registry[f.Name()] = f
}

// Lookup returns the format registered under name, or an error if unknown.
func Lookup(name string) (Format, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown record format %q", name)
	}
	return f, nil
}

func init() {
	Register(lineFormat{})
	Register(kvFormat{})
}

// --- LINE format: one record per newline-terminated line. ---

type lineFormat struct{}

func (lineFormat) Name() string { return "line" }

func (lineFormat) NewReader(rc io.ReadCloser) Reader {
	return &lineReader{rc: rc, br: bufio.NewReader(rc)}
}

func (lineFormat) NewWriter(wc io.WriteCloser) Writer {
	return &lineWriter{wc: wc}
}

type lineReader struct {
	rc    io.ReadCloser
	br    *bufio.Reader
	index int64
}

func (r *lineReader) Read() (Record, error) {
	line, err := r.br.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return Record{}, ErrNoMoreRecords
	}
	r.index += int64(len(line))
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	return Record{Raw: line}, nil
}

func (r *lineReader) Index() int64 { return r.index }
func (r *lineReader) Close() error { return r.rc.Close() }

type lineWriter struct {
	wc io.WriteCloser
}

func (w *lineWriter) Write(rec Record) error {
	if _, err := w.wc.Write(rec.Raw); err != nil {
		return err
	}
	_, err := w.wc.Write([]byte{'\n'})
	return err
}

func (w *lineWriter) Close() error { return w.wc.Close() }

// --- KV format: one JSON-encoded {"key":...,"value":...} object per line. ---

// KV is the decoded shape of a KV-format record.
type KV struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type kvFormat struct{}

func (kvFormat) Name() string { return "kv" }

func (kvFormat) NewReader(rc io.ReadCloser) Reader {
	return &kvReader{lineReader: &lineReader{rc: rc, br: bufio.NewReader(rc)}}
}

func (kvFormat) NewWriter(wc io.WriteCloser) Writer {
	return &kvWriter{lineWriter: &lineWriter{wc: wc}}
}

type kvReader struct {
	*lineReader
}

type kvWriter struct {
	*lineWriter
}

// DecodeKV parses a KV record's raw bytes.
func DecodeKV(rec Record) (KV, error) {
	var kv KV
	if err := json.Unmarshal(rec.Raw, &kv); err != nil {
		return KV{}, fmt.Errorf("decode kv record: %w", err)
	}
	return kv, nil
}

// EncodeKV builds a KV record from a key and value.
func EncodeKV(key, value string) (Record, error) {
	raw, err := json.Marshal(KV{Key: key, Value: value})
	if err != nil {
		return Record{}, fmt.Errorf("encode kv record: %w", err)
	}
	return Record{Raw: raw}, nil
}
