package orchestrate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/distributed-docstore/docstore/internal/docerr"
	"github.com/distributed-docstore/docstore/internal/docstore"
	"github.com/distributed-docstore/docstore/internal/kv"
	"github.com/distributed-docstore/docstore/internal/model"
	"github.com/distributed-docstore/docstore/internal/replicate"
)

func newTestOrchestrator(t *testing.T, peers []string) *Orchestrator {
	t.Helper()
	store, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	engine := docstore.New(store)
	client := replicate.NewClient(peers, "tok", 200*time.Millisecond, nil)
	return New(engine, client)
}

func ackPeer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func conflictPeer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func failPeer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPutCommitsWhenAllPeersAck(t *testing.T) {
	peer := ackPeer(t)
	o := newTestOrchestrator(t, []string{peer.URL})

	saved, err := o.Put(context.Background(), model.Document{"_id": "doc1", "v": 1})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if saved.ID() != "doc1" {
		t.Fatalf("saved = %+v", saved)
	}

	got, err := o.engine.Get("doc1")
	if err != nil {
		t.Fatalf("Get after commit: %v", err)
	}
	if got.Rev() != saved.Rev() {
		t.Fatalf("stored rev %q != returned rev %q", got.Rev(), saved.Rev())
	}
}

func TestPutTeleratesPeerFailure(t *testing.T) {
	peer := failPeer(t)
	o := newTestOrchestrator(t, []string{peer.URL})

	saved, err := o.Put(context.Background(), model.Document{"_id": "doc1"})
	if err != nil {
		t.Fatalf("Put with failing peer should still commit locally: %v", err)
	}
	if _, err := o.engine.Get(saved.ID()); err != nil {
		t.Fatalf("Get after tolerated peer failure: %v", err)
	}
}

func TestPutRollsBackOnPeerConflictForNewDocument(t *testing.T) {
	peer := conflictPeer(t)
	o := newTestOrchestrator(t, []string{peer.URL})

	_, err := o.Put(context.Background(), model.Document{"_id": "doc1"})
	if !errors.Is(err, docerr.ErrConflict) {
		t.Fatalf("Put err = %v, want ErrConflict", err)
	}

	if _, err := o.engine.Get("doc1"); !errors.Is(err, docerr.ErrNotFound) {
		t.Fatalf("after rollback of a new doc, Get err = %v, want ErrNotFound", err)
	}
}

func TestPutRollsBackToPriorRevisionOnPeerConflict(t *testing.T) {
	o := newTestOrchestrator(t, nil) // no peers yet for the first write

	first, err := o.Put(context.Background(), model.Document{"_id": "doc1", "v": 1})
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}

	peer := conflictPeer(t)
	o.client = replicate.NewClient([]string{peer.URL}, "tok", 200*time.Millisecond, nil)

	_, err = o.Put(context.Background(), model.Document{"_id": "doc1", "_rev": first.Rev(), "v": 2})
	if !errors.Is(err, docerr.ErrConflict) {
		t.Fatalf("second Put err = %v, want ErrConflict", err)
	}

	got, err := o.engine.Get("doc1")
	if err != nil {
		t.Fatalf("Get after rollback: %v", err)
	}
	if got.Rev() != first.Rev() || got["v"] != float64(1) {
		t.Fatalf("after rollback, got = %+v, want byte-identical to first write %+v", got, first)
	}
}

func TestDeleteCommitsAndPushesChangeRecord(t *testing.T) {
	var received replicate.Change
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	o := newTestOrchestrator(t, []string{srv.URL})
	saved, err := o.Put(context.Background(), model.Document{"_id": "doc1"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := o.Delete(context.Background(), "doc1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := o.engine.Get("doc1"); !errors.Is(err, docerr.ErrNotFound) {
		t.Fatalf("Get after Delete = %v, want ErrNotFound", err)
	}
	if received.Op != replicate.OpDel || received.ID != "doc1" || received.PrevRev != saved.Rev() {
		t.Fatalf("received change record = %+v", received)
	}
}

func TestDeleteRollsBackOnPeerConflict(t *testing.T) {
	peer := conflictPeer(t)
	o := newTestOrchestrator(t, nil)

	saved, err := o.Put(context.Background(), model.Document{"_id": "doc1"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	o.client = replicate.NewClient([]string{peer.URL}, "tok", 200*time.Millisecond, nil)

	err = o.Delete(context.Background(), "doc1")
	if !errors.Is(err, docerr.ErrConflict) {
		t.Fatalf("Delete err = %v, want ErrConflict", err)
	}

	got, err := o.engine.Get("doc1")
	if err != nil {
		t.Fatalf("Get after rollback: %v", err)
	}
	if got.Rev() != saved.Rev() {
		t.Fatalf("after rollback, got.Rev() = %q, want %q", got.Rev(), saved.Rev())
	}
}

func TestDeleteMissingDocumentIsIdempotent(t *testing.T) {
	// §4.7/§8: delete has no 404 in its contract — it is an idempotent
	// no-op when the document is already absent, same as tx.Del itself.
	o := newTestOrchestrator(t, nil)
	if err := o.Delete(context.Background(), "absent"); err != nil {
		t.Fatalf("Delete(absent) = %v, want nil (idempotent)", err)
	}
	if err := o.Delete(context.Background(), "absent"); err != nil {
		t.Fatalf("second Delete(absent) = %v, want nil (idempotent)", err)
	}
}
