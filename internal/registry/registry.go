// Package registry manages the ordered sequence of outstanding requests on a
// subject record.
//
// Every operation returns a fresh slice and never writes through its input,
// so a caller holding the loaded record can compute a replacement sequence
// and persist it wholesale, or throw it away.
package registry

import (
	"time"

	"github.com/roach88/dispense/internal/ir"
)

// Find returns the first request for command, in sequence order.
func Find(seq []ir.Request, command string) (ir.Request, bool) {
	for _, req := range seq {
		if req.Command == command {
			return req, true
		}
	}
	return ir.Request{}, false
}

// Remove returns a new sequence without any request for command.
// Duplicates are removed too, not just the first match.
func Remove(seq []ir.Request, command string) []ir.Request {
	out := make([]ir.Request, 0, len(seq))
	for _, req := range seq {
		if req.Command != command {
			out = append(out, req)
		}
	}
	return out
}

// Append returns a new sequence with req added at the end.
func Append(seq []ir.Request, req ir.Request) []ir.Request {
	out := make([]ir.Request, len(seq), len(seq)+1)
	copy(out, seq)
	return append(out, req)
}

// Age is how long req has been outstanding at now.
// A request stamped in the future has age zero.
func Age(req ir.Request, now time.Time) time.Duration {
	age := now.Sub(req.CreatedAt)
	if age < 0 {
		return 0
	}
	return age
}

// IsStale reports whether req has been outstanding for at least window.
// A request exactly window old is stale.
func IsStale(req ir.Request, now time.Time, window time.Duration) bool {
	return Age(req, now) >= window
}
