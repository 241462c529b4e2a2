package datanode

import (
	"io"
	"net"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"distcompute/internal/wire"
)

// forwardToPeers writes header's chunk, with replicationFactor pinned to 1,
// to every named peer concurrently. This is one hop only: no
// further chaining. Peer failures are logged and aggregated, but never fail
// the primary write, which has already succeeded by the time this runs.
func (s *Server) forwardToPeers(header wire.WriteHeader, payload []byte) {
	var g errgroup.Group
	var merr error

	results := make(chan error, len(header.Peers))
	for _, peer := range header.Peers {
		peer := peer
		g.Go(func() error {
			err := forwardOne(peer, header, payload)
			results <- err
			return nil
		})
	}
	g.Wait()
	close(results)

	for err := range results {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if merr != nil {
		s.logger.Warn("replica forward failures", "file", header.FileName, "chunk", header.ChunkNumber, "error", merr)
	}
}

func forwardOne(peer string, header wire.WriteHeader, payload []byte) error {
	conn, err := net.Dial("tcp", peer)
	if err != nil {
		return err
	}
	defer conn.Close()

	fwd := wire.WriteHeader{
		FileName:          header.FileName,
		Extension:         header.Extension,
		ChunkNumber:       header.ChunkNumber,
		ChunkSize:         header.ChunkSize,
		ReplicationFactor: 1,
	}
	if err := wire.WriteWriteHeader(conn, fwd); err != nil {
		return err
	}
	if _, err := conn.Write(payload); err != nil {
		return err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	// Drain until the peer closes, signaling it has stored the chunk and
	// notified NS.
	_, err = io.Copy(io.Discard, conn)
	return err
}
