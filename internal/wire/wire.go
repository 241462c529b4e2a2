// Package wire implements the length-prefixed framing used by the chunk
// transport protocol between the HDFS Client, the Data Node, and replica
// peers. Every message is a command tag followed by a
// sequence of self-describing values — short strings and integers — and,
// for WRITE and READ, a raw byte stream read or written until the peer
// half-closes its side of the connection.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Tag identifies the operation carried by a frame.
type Tag uint8

const (
	TagWrite Tag = iota + 1
	TagRead
	TagDelete
)

func (t Tag) String() string {
	switch t {
	case TagWrite:
		return "WRITE"
	case TagRead:
		return "READ"
	case TagDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// maxStringLen guards against a corrupt or hostile peer sending an
// unreasonable length prefix and exhausting memory.
const maxStringLen = 1 << 20

// WriteTag writes a single command tag byte.
func WriteTag(w io.Writer, t Tag) error {
	_, err := w.Write([]byte{byte(t)})
	return err
}

// ReadTag reads a single command tag byte.
func ReadTag(r io.Reader) (Tag, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return Tag(buf[0]), nil
}

// WriteString writes a length-prefixed UTF-8 string.
func WriteString(w io.Writer, s string) error {
	if err := WriteUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadString reads a length-prefixed UTF-8 string.
func ReadString(r io.Reader) (string, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("string length %d exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteUint32 writes a 4-byte big-endian unsigned integer.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint32 reads a 4-byte big-endian unsigned integer.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteUint64 writes an 8-byte big-endian unsigned integer.
func WriteUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint64 reads an 8-byte big-endian unsigned integer.
func ReadUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// WriteHeader writes the WRITE-operation header: file identity, chunk
// number, the file's nominal chunk-size ceiling, replication factor, and the
// replica peer addresses the receiving Data Node should forward the payload
// to.
type WriteHeader struct {
	FileName          string
	Extension         string
	ChunkNumber       int
	ChunkSize         int64
	ReplicationFactor int
	Peers             []string
}

func WriteWriteHeader(w io.Writer, h WriteHeader) error {
	if err := WriteTag(w, TagWrite); err != nil {
		return err
	}
	if err := WriteString(w, h.FileName); err != nil {
		return err
	}
	if err := WriteString(w, h.Extension); err != nil {
		return err
	}
	if err := WriteUint32(w, uint32(h.ChunkNumber)); err != nil {
		return err
	}
	if err := WriteUint64(w, uint64(h.ChunkSize)); err != nil {
		return err
	}
	if err := WriteUint32(w, uint32(h.ReplicationFactor)); err != nil {
		return err
	}
	if err := WriteUint32(w, uint32(len(h.Peers))); err != nil {
		return err
	}
	for _, p := range h.Peers {
		if err := WriteString(w, p); err != nil {
			return err
		}
	}
	return nil
}

// ReadWriteHeader reads a WRITE header. The caller must already have
// consumed the tag via ReadTag.
func ReadWriteHeader(r io.Reader) (WriteHeader, error) {
	var h WriteHeader
	var err error
	if h.FileName, err = ReadString(r); err != nil {
		return h, err
	}
	if h.Extension, err = ReadString(r); err != nil {
		return h, err
	}
	n, err := ReadUint32(r)
	if err != nil {
		return h, err
	}
	h.ChunkNumber = int(n)
	cs, err := ReadUint64(r)
	if err != nil {
		return h, err
	}
	h.ChunkSize = int64(cs)
	if n, err = ReadUint32(r); err != nil {
		return h, err
	}
	h.ReplicationFactor = int(n)
	if n, err = ReadUint32(r); err != nil {
		return h, err
	}
	h.Peers = make([]string, n)
	for i := range h.Peers {
		if h.Peers[i], err = ReadString(r); err != nil {
			return h, err
		}
	}
	return h, nil
}

// Identity joins a file's base name and extension into the single opaque
// string the Name Service uses as a file's identity key. The chunk storage
// path keeps the two parts separate ({fileName}-{chunkNumber}{extension}),
// but NS treats the concatenation as one name.
func Identity(fileName, extension string) string { return fileName + extension }

// ChunkHeader identifies a single chunk; used by READ and DELETE.
type ChunkHeader struct {
	FileName    string
	Extension   string
	ChunkNumber int
}

func WriteChunkHeader(w io.Writer, tag Tag, h ChunkHeader) error {
	if err := WriteTag(w, tag); err != nil {
		return err
	}
	if err := WriteString(w, h.FileName); err != nil {
		return err
	}
	if err := WriteString(w, h.Extension); err != nil {
		return err
	}
	return WriteUint32(w, uint32(h.ChunkNumber))
}

// ReadChunkHeader reads a READ/DELETE header. The caller must already have
// consumed the tag via ReadTag.
func ReadChunkHeader(r io.Reader) (ChunkHeader, error) {
	var h ChunkHeader
	var err error
	if h.FileName, err = ReadString(r); err != nil {
		return h, err
	}
	if h.Extension, err = ReadString(r); err != nil {
		return h, err
	}
	n, err := ReadUint32(r)
	if err != nil {
		return h, err
	}
	h.ChunkNumber = int(n)
	return h, nil
}
