// Package errs defines the stable error-kind taxonomy shared by every
// component: the Name Service, Data Node, HDFS Client, Job Manager, Daemon,
// and Job Client all return and propagate these sentinels.
//
// The control plane crosses a net/rpc boundary, which only carries error
// text, not error values. Classify recovers a sentinel from that text on the
// client side so callers can still use errors.Is after an RPC round trip.
package errs

import "errors"

var (
	ErrNoDataNodes         = errors.New("no data nodes")
	ErrNoDaemons           = errors.New("no daemons")
	ErrUnknownFile         = errors.New("unknown file")
	ErrIncomplete          = errors.New("file incomplete")
	ErrNoLiveReplica       = errors.New("no live replica")
	ErrRecordTooLarge      = errors.New("record too large")
	ErrMissingChunks       = errors.New("missing chunks")
	ErrLocalityUnsatisfied = errors.New("locality unsatisfied")
	ErrTransport           = errors.New("transport error")
	ErrSnapshotCorrupt     = errors.New("snapshot corrupt")
	ErrUnknownJob          = errors.New("unknown job")
)

// sentinels is the ordered list of sentinels Classify matches against.
// Order matters only in that each sentinel's text must be unambiguous.
var sentinels = []error{
	ErrNoDataNodes,
	ErrNoDaemons,
	ErrUnknownFile,
	ErrIncomplete,
	ErrNoLiveReplica,
	ErrRecordTooLarge,
	ErrMissingChunks,
	ErrLocalityUnsatisfied,
	ErrTransport,
	ErrSnapshotCorrupt,
	ErrUnknownJob,
}

// Classify recovers the sentinel error whose text is a prefix of msg, or nil
// if msg is empty, or a generic error wrapping msg if no sentinel matches.
// net/rpc delivers errors as plain strings produced by Errorf("%w: ...", sentinel),
// so the sentinel's Error() text always appears as the message prefix.
func Classify(msg string) error {
	if msg == "" {
		return nil
	}
	for _, s := range sentinels {
		prefix := s.Error()
		if len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
			return s
		}
	}
	return errors.New(msg)
}
