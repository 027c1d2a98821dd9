// Package docstore is the document engine (C4): local CAS operations
// (get/put/delete/list), the withDocTransaction scope that exposes a
// transaction handle holding the per-"_id" lock across multiple steps, and
// the remote-apply operations used by inbound replication.
//
// This is the core of the write path's consistency contract. Every
// operation that touches a document's state does so while holding that
// document's entry in the per-key mutex table (internal/doclock); nothing
// in this package ever reads-then-writes a document without the lock held
// across both halves.
package docstore

import (
	"errors"
	"fmt"

	"github.com/distributed-docstore/docstore/internal/doclock"
	"github.com/distributed-docstore/docstore/internal/docerr"
	"github.com/distributed-docstore/docstore/internal/kv"
	"github.com/distributed-docstore/docstore/internal/model"
	"github.com/distributed-docstore/docstore/internal/rev"
	"github.com/google/uuid"
)

// Engine is the document engine. It owns no state of its own beyond the KV
// adapter and the lock table — all document state lives in kv.Store.
type Engine struct {
	kv    *kv.Store
	locks *doclock.Table
}

// New creates an Engine over an already-open KV adapter.
func New(store *kv.Store) *Engine {
	return &Engine{kv: store, locks: doclock.New()}
}

// Get returns the document stored under id, or docerr.ErrNotFound.
func (e *Engine) Get(id string) (model.Document, error) {
	release := e.locks.Acquire(id)
	defer release()
	return e.getLocked(id)
}

// Put performs a CAS create-or-update. See Tx.Put for the full contract;
// this is the same operation, scoped to a single step.
func (e *Engine) Put(input model.Document) (model.Document, error) {
	id := input.ID()
	if id == "" {
		id = uuid.NewString()
	}
	release := e.locks.Acquire(id)
	defer release()
	return e.putLocked(id, input)
}

// Del idempotently deletes the document under id.
func (e *Engine) Del(id string) error {
	release := e.locks.Acquire(id)
	defer release()
	return e.kv.Del(id)
}

// ListIDs returns up to limit ids in key order.
func (e *Engine) ListIDs(limit int) ([]string, error) {
	return e.kv.Keys(limit)
}

// ─── Transaction scope ────────────────────────────────────────────────────

// Tx is the handle passed to the body of WithDocTransaction. Every method
// evaluates against the current stored state at call time, not a snapshot
// taken when the transaction opened.
type Tx struct {
	engine *Engine
	id     string
}

// WithDocTransaction acquires the per-id lock for id, invokes body with a
// transaction handle, and releases the lock on every exit path — including
// a panic unwinding through body, since the release is deferred here rather
// than in body itself.
//
// The lock is held across whatever body does, including network I/O the
// caller performs inside it (the replication fan-out in
// internal/orchestrate runs inside this scope) — this is the rollback
// window spec.md §5 and §9 describe as load-bearing. Do not optimise this
// by releasing early.
func (e *Engine) WithDocTransaction(id string, body func(tx *Tx) error) error {
	release := e.locks.Acquire(id)
	defer release()
	return body(&Tx{engine: e, id: id})
}

// Get fetches the current stored document, or docerr.ErrNotFound.
func (tx *Tx) Get() (model.Document, error) {
	return tx.engine.getLocked(tx.id)
}

// Put performs a CAS create-or-update:
//
//   - If no document exists under id, input._rev must be absent.
//   - If a document exists, input._rev must equal its current _rev.
//
// On success the existing fields are merged with input (input wins on
// overlap), "_id" is forced, a fresh "_rev" is allocated, and the result is
// stored and returned. On CAS failure it returns docerr.ErrConflict.
func (tx *Tx) Put(input model.Document) (model.Document, error) {
	return tx.engine.putLocked(tx.id, input)
}

// Del deletes the document if it exists (idempotent if already absent).
// If expectedPrevRev is non-empty, the current _rev must equal it (and a
// currently-absent document is itself treated as a mismatch against a
// non-empty expectation); docerr.ErrConflict is returned otherwise.
func (tx *Tx) Del(expectedPrevRev string) error {
	current, err := tx.engine.getLocked(tx.id)
	if err != nil && !errors.Is(err, docerr.ErrNotFound) {
		return err
	}
	exists := err == nil

	if expectedPrevRev != "" {
		if !exists || current.Rev() != expectedPrevRev {
			return fmt.Errorf("del %q: %w", tx.id, docerr.ErrConflict)
		}
	}
	if !exists {
		return nil
	}
	return tx.engine.kv.Del(tx.id)
}

// ReplaceExact verifies the current _rev equals expectedPrevRev (both empty
// iff the document is currently absent), then stores doc verbatim — with
// "_id" forced — WITHOUT allocating a new revision. This is the rollback
// primitive: it preserves byte-identity of a prior revision so that peers
// who already observed it do not see a spurious new _rev after a rollback.
func (tx *Tx) ReplaceExact(doc model.Document, expectedPrevRev string) error {
	current, err := tx.engine.getLocked(tx.id)
	if err != nil && !errors.Is(err, docerr.ErrNotFound) {
		return err
	}
	exists := err == nil

	switch {
	case exists && current.Rev() != expectedPrevRev:
		return fmt.Errorf("replaceExact %q: %w", tx.id, docerr.ErrConflict)
	case !exists && expectedPrevRev != "":
		return fmt.Errorf("replaceExact %q: %w", tx.id, docerr.ErrConflict)
	}

	stored := doc.WithID(tx.id)
	data, err := model.Marshal(stored)
	if err != nil {
		return fmt.Errorf("replaceExact %q: marshal: %w", tx.id, err)
	}
	return tx.engine.kv.Put(tx.id, data)
}

// ─── Remote-apply operations ──────────────────────────────────────────────
//
// These acquire the lock themselves and must not be called from within an
// already-held transaction (WithDocTransaction/Tx). The sender's revision
// is authoritative: neither operation allocates a new _rev.

// ApplyRemotePut applies an inbound replicated put. doc._rev must be
// non-empty; the document's current stored _rev must equal prevRev (both
// may be empty, meaning "currently absent"). On mismatch, docerr.ErrConflict.
func (e *Engine) ApplyRemotePut(doc model.Document, prevRev string) error {
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("applyRemotePut: %w: missing _id", docerr.ErrInvalidPayload)
	}
	if doc.Rev() == "" {
		return fmt.Errorf("applyRemotePut %q: %w: missing _rev", id, docerr.ErrInvalidPayload)
	}

	release := e.locks.Acquire(id)
	defer release()

	current, err := e.getLocked(id)
	if err != nil && !errors.Is(err, docerr.ErrNotFound) {
		return err
	}
	exists := err == nil

	switch {
	case exists && current.Rev() != prevRev:
		return fmt.Errorf("applyRemotePut %q: %w", id, docerr.ErrConflict)
	case !exists && prevRev != "":
		return fmt.Errorf("applyRemotePut %q: %w", id, docerr.ErrConflict)
	}

	stored := doc.WithID(id)
	data, err := model.Marshal(stored)
	if err != nil {
		return fmt.Errorf("applyRemotePut %q: marshal: %w", id, err)
	}
	return e.kv.Put(id, data)
}

// ApplyRemoteDel applies an inbound replicated delete. The document's
// current stored _rev must equal prevRev (both may be empty). If the
// document exists it is deleted; otherwise this is a no-op.
func (e *Engine) ApplyRemoteDel(id string, prevRev string) error {
	release := e.locks.Acquire(id)
	defer release()

	current, err := e.getLocked(id)
	if err != nil && !errors.Is(err, docerr.ErrNotFound) {
		return err
	}
	exists := err == nil

	switch {
	case exists && current.Rev() != prevRev:
		return fmt.Errorf("applyRemoteDel %q: %w", id, docerr.ErrConflict)
	case !exists && prevRev != "":
		return fmt.Errorf("applyRemoteDel %q: %w", id, docerr.ErrConflict)
	case !exists:
		return nil
	}
	return e.kv.Del(id)
}

// ─── internal, lock-already-held helpers ──────────────────────────────────

func (e *Engine) getLocked(id string) (model.Document, error) {
	data, err := e.kv.Get(id)
	if err != nil {
		if errors.Is(err, docerr.ErrNotFound) {
			return nil, docerr.ErrNotFound
		}
		return nil, fmt.Errorf("get %q: %w", id, err)
	}
	doc, err := model.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("get %q: unmarshal: %w", id, err)
	}
	return doc, nil
}

func (e *Engine) putLocked(id string, input model.Document) (model.Document, error) {
	current, err := e.getLocked(id)
	if err != nil && !errors.Is(err, docerr.ErrNotFound) {
		return nil, err
	}
	exists := err == nil

	switch {
	case exists && input.Rev() != current.Rev():
		return nil, fmt.Errorf("put %q: %w", id, docerr.ErrConflict)
	case !exists && input.Rev() != "":
		return nil, fmt.Errorf("put %q: %w", id, docerr.ErrConflict)
	}

	var prevRev string
	if exists {
		prevRev = current.Rev()
	}

	merged := model.Merge(current, input)
	merged = merged.WithID(id)
	merged = merged.WithRev(rev.Next(prevRev))

	data, err := model.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("put %q: marshal: %w", id, err)
	}
	if err := e.kv.Put(id, data); err != nil {
		return nil, err
	}
	return merged, nil
}
