// Package replicate implements the replication client (C5) — synchronous
// fan-out of a change record to every configured peer — and the receiver
// validation (C6) that inbound pushes must pass before they reach the
// document engine's remote-apply operations.
//
// The fan-out shape (per-peer goroutine, bounded timeout, classify into
// disjoint result buckets) is the teacher's cluster.Replicator.ReplicateWrite
// generalised: the teacher waits for a write quorum and returns early once
// W acks arrive, but this spec has no quorum — every peer must be contacted
// and the fan-out only completes once all of them have settled.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/distributed-docstore/docstore/internal/docerr"
	"github.com/distributed-docstore/docstore/internal/model"
	"github.com/distributed-docstore/docstore/internal/rev"
)

// Op identifies the kind of change being replicated.
type Op string

const (
	OpPut Op = "put"
	OpDel Op = "del"
)

// Change is the wire format exchanged between peers: §6 "change record".
// For Op == OpPut, Doc._id == ID and Doc._rev == Rev is an invariant the
// receiver validates before delegating to the document engine.
type Change struct {
	Op      Op             `json:"op"`
	ID      string         `json:"_id"`
	PrevRev string         `json:"prevRev,omitempty"`
	Rev     string         `json:"rev,omitempty"`
	Doc     model.Document `json:"doc,omitempty"`
}

// Validate checks the invariants §4.6/§6 place on an inbound change record.
// It does not consult the document engine — purely structural validation.
// Per §9, a malformed revision is rejected here at ingress rather than
// silently treated as generation 0 the way the local allocator tolerates.
func (c Change) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: missing _id", docerr.ErrInvalidPayload)
	}
	if c.PrevRev != "" && !rev.Valid(c.PrevRev) {
		return fmt.Errorf("%w: malformed prevRev %q", docerr.ErrInvalidPayload, c.PrevRev)
	}
	switch c.Op {
	case OpPut:
		if c.Doc == nil {
			return fmt.Errorf("%w: put without doc", docerr.ErrInvalidPayload)
		}
		if c.Doc.ID() != c.ID {
			return fmt.Errorf("%w: doc._id %q != _id %q", docerr.ErrInvalidPayload, c.Doc.ID(), c.ID)
		}
		if c.Doc.Rev() != c.Rev {
			return fmt.Errorf("%w: doc._rev %q != rev %q", docerr.ErrInvalidPayload, c.Doc.Rev(), c.Rev)
		}
		if !rev.Valid(c.Rev) {
			return fmt.Errorf("%w: malformed rev %q", docerr.ErrInvalidPayload, c.Rev)
		}
	case OpDel:
		// no further structural constraints
	default:
		return fmt.Errorf("%w: unknown op %q", docerr.ErrInvalidPayload, c.Op)
	}
	return nil
}

// FanoutResult partitions peer base URLs into the three disjoint outcomes
// §4.5 defines. The fan-out only returns once every peer has settled —
// there is no early return on first conflict.
type FanoutResult struct {
	Acks      []string
	Conflicts []string
	Failures  []string
}

// Client fans a change record out to every configured peer.
type Client struct {
	peers      []string
	token      string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient builds a replication client. token is the single outbound
// bearer token (spec.md §9: a distinguished token, not "first of the set").
func NewClient(peers []string, token string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{peers: peers, token: token, httpClient: httpClient, timeout: timeout}
}

// Peers returns the configured peer base URLs.
func (c *Client) Peers() []string { return c.peers }

// PushToPeers fans change out to every peer concurrently, each bound by the
// client's per-request timeout, and classifies the outcome. It completes
// only after every peer's fan-out arm has settled.
func (c *Client) PushToPeers(ctx context.Context, change Change) FanoutResult {
	n := len(c.peers)
	acks := make([]bool, n)
	conflicts := make([]bool, n)
	failures := make([]bool, n)

	var g errgroup.Group
	for i, peer := range c.peers {
		i, peer := i, peer
		g.Go(func() error {
			switch c.pushOne(ctx, peer, change) {
			case http.StatusOK:
				acks[i] = true
			case http.StatusConflict:
				conflicts[i] = true
			default:
				failures[i] = true
			}
			return nil // never fail the group; outcomes are encoded above
		})
	}
	_ = g.Wait()

	var out FanoutResult
	for i, peer := range c.peers {
		switch {
		case acks[i]:
			out.Acks = append(out.Acks, peer)
		case conflicts[i]:
			out.Conflicts = append(out.Conflicts, peer)
		case failures[i]:
			out.Failures = append(out.Failures, peer)
		}
	}
	return out
}

// pushOne POSTs change to a single peer's /replicate endpoint and returns an
// HTTP-status-shaped classification: 200 for ack, 409 for conflict, and any
// other value (including network errors and timeouts, folded to 0) for
// failure.
func (c *Client) pushOne(ctx context.Context, peer string, change Change) int {
	body, err := json.Marshal(change)
	if err != nil {
		return 0
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, peer+"/replicate", bytes.NewReader(body))
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0 // network error or timeout -> failure
	}
	defer resp.Body.Close()
	return resp.StatusCode
}
