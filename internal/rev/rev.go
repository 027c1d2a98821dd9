// Package rev implements the revision allocator (C3): it produces the next
// "_rev" token given the previous one, embedding a monotonic generation
// counter and an unpredictable nonce so that concurrently-derived revisions
// with equal generation are still distinguishable.
package rev

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Next returns "1-<nonce>" when prev is empty, else "<n+1>-<nonce>" where n
// is parsed from the substring before the first '-' in prev.
//
// A non-numeric or missing generation prefix is treated as generation 0 —
// this is a deliberately weak contract inherited from the spec (see
// DESIGN.md): malformed input is tolerated here rather than rejected, but
// ingress validation (internal/docstore CAS checks, internal/replicate
// receiver validation) still requires well-formed "<int>-<hex>" tokens
// before a revision ever reaches this allocator.
func Next(prev string) string {
	gen := generation(prev)
	return format(gen+1, nonce())
}

// generation parses the integer prefix of a revision token. An empty,
// malformed, or missing prefix is treated as 0.
func generation(rev string) int64 {
	if rev == "" {
		return 0
	}
	idx := strings.IndexByte(rev, '-')
	if idx < 0 {
		return 0
	}
	n, err := strconv.ParseInt(rev[:idx], 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// nonce returns 8 hex characters drawn from a cryptographically
// unpredictable source, derived from a UUIDv4 as the spec permits.
func nonce() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}

func format(gen int64, nonce string) string {
	return strconv.FormatInt(gen, 10) + "-" + nonce
}

// Valid reports whether rev is a well-formed "<positive-int>-<8-hex>" token.
// Used at ingress (replication receiver, remote-apply) where the spec asks
// implementations to reject malformed revisions rather than silently
// remapping them the way the internal allocator above tolerates.
func Valid(r string) bool {
	idx := strings.IndexByte(r, '-')
	if idx <= 0 || idx == len(r)-1 {
		return false
	}
	n, err := strconv.ParseInt(r[:idx], 10, 64)
	if err != nil || n <= 0 {
		return false
	}
	nonce := r[idx+1:]
	if len(nonce) != 8 {
		return false
	}
	for _, c := range nonce {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
