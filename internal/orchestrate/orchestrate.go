// Package orchestrate implements the write orchestration (C7): the
// user-facing create/update/delete flow that binds a document-engine
// transaction to a replication fan-out under a single lock scope, with
// conditional rollback on peer conflict.
//
// This generalises the teacher's Replicator.ReplicateWrite/DeleteReplicated
// (apply locally, then fan out) into a tx-scoped commit/rollback state
// machine: the teacher commits unconditionally once its write quorum acks,
// this orchestrator instead rolls the local write back whenever any peer
// reports a revision conflict, since there is no quorum to fall back on.
package orchestrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/distributed-docstore/docstore/internal/docerr"
	"github.com/distributed-docstore/docstore/internal/docstore"
	"github.com/distributed-docstore/docstore/internal/model"
	"github.com/distributed-docstore/docstore/internal/replicate"
	"github.com/google/uuid"
)

// Orchestrator binds the document engine and replication client into the
// write/delete flow described by the state machine:
//
//	OPEN --tx.put/del ok--> LOCAL_APPLIED --push--> PUSHED
//	PUSHED --no conflicts--> COMMITTED (terminal)
//	PUSHED --conflicts--> ROLLING_BACK --replaceExact/del--> ROLLED_BACK (terminal, CONFLICT)
//	OPEN --CAS fail--> LOCAL_CONFLICT (terminal, CONFLICT)
type Orchestrator struct {
	engine *docstore.Engine
	client *replicate.Client
}

// New builds an Orchestrator over an already-constructed engine and
// replication client.
func New(engine *docstore.Engine, client *replicate.Client) *Orchestrator {
	return &Orchestrator{engine: engine, client: client}
}

// Put performs the create/update path for POST /api/docs: local CAS put,
// fan-out, and conditional rollback — all inside a single held lock on the
// document's _id. Peer failures (timeout, network error, non-200/409
// status) are tolerated and never cause a rollback.
func (o *Orchestrator) Put(ctx context.Context, input model.Document) (model.Document, error) {
	id := input.ID()
	if id == "" {
		id = uuid.NewString()
	}

	var saved model.Document
	err := o.engine.WithDocTransaction(id, func(tx *docstore.Tx) error {
		prev, err := tx.Get()
		if err != nil && !errors.Is(err, docerr.ErrNotFound) {
			return err
		}
		prevExists := err == nil

		saved, err = tx.Put(input.WithID(id))
		if err != nil {
			return err // LOCAL_CONFLICT: no push issued
		}

		var prevRev string
		if prevExists {
			prevRev = prev.Rev()
		}
		change := replicate.Change{
			Op:      replicate.OpPut,
			ID:      saved.ID(),
			PrevRev: prevRev,
			Rev:     saved.Rev(),
			Doc:     saved,
		}
		result := o.client.PushToPeers(ctx, change)

		if len(result.Conflicts) > 0 {
			var rollbackErr error
			if prevExists {
				rollbackErr = tx.ReplaceExact(prev, saved.Rev())
			} else {
				rollbackErr = tx.Del(saved.Rev())
			}
			if rollbackErr != nil {
				return fmt.Errorf("put %q: rollback after peer conflict: %w", id, rollbackErr)
			}
			return fmt.Errorf("put %q: %w (peer conflict: %v)", id, docerr.ErrConflict, result.Conflicts)
		}
		return nil // COMMITTED; result.Failures tolerated, not retried
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Delete performs the DELETE /api/docs/:id path: local delete, fan-out, and
// conditional rollback, analogous to Put.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	return o.engine.WithDocTransaction(id, func(tx *docstore.Tx) error {
		prev, err := tx.Get()
		if err != nil && !errors.Is(err, docerr.ErrNotFound) {
			return err
		}
		prevExists := err == nil

		var prevRev string
		if prevExists {
			prevRev = prev.Rev()
		}
		if err := tx.Del(prevRev); err != nil {
			return err // LOCAL_CONFLICT
		}

		change := replicate.Change{
			Op:      replicate.OpDel,
			ID:      id,
			PrevRev: prevRev,
		}
		result := o.client.PushToPeers(ctx, change)

		if len(result.Conflicts) > 0 {
			if prevExists {
				if err := tx.ReplaceExact(prev, ""); err != nil {
					return fmt.Errorf("delete %q: rollback after peer conflict: %w", id, err)
				}
			}
			return fmt.Errorf("delete %q: %w (peer conflict: %v)", id, docerr.ErrConflict, result.Conflicts)
		}
		return nil
	})
}
