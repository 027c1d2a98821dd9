package docstore

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/distributed-docstore/docstore/internal/docerr"
	"github.com/distributed-docstore/docstore/internal/kv"
	"github.com/distributed-docstore/docstore/internal/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store)
}

func TestPutCreateThenGetRoundTrips(t *testing.T) {
	e := newTestEngine(t)
	saved, err := e.Put(model.Document{"_id": "doc1", "title": "hi"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if saved.ID() != "doc1" || saved.Rev() == "" {
		t.Fatalf("saved = %+v", saved)
	}

	got, err := e.Get("doc1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got, saved) {
		t.Fatalf("Get() = %+v, want %+v", got, saved)
	}
}

func TestPutGeneratesIDWhenAbsent(t *testing.T) {
	e := newTestEngine(t)
	saved, err := e.Put(model.Document{"title": "no id given"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if saved.ID() == "" {
		t.Fatal("Put did not assign an _id")
	}
}

func TestPutCASConflictOnMismatchedRev(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Put(model.Document{"_id": "doc1"}); err != nil {
		t.Fatalf("initial Put: %v", err)
	}

	_, err := e.Put(model.Document{"_id": "doc1", "_rev": "0-bad00000", "v": 1})
	if !errors.Is(err, docerr.ErrConflict) {
		t.Fatalf("Put with stale rev err = %v, want ErrConflict", err)
	}

	got, err := e.Get("doc1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := got["v"]; ok {
		t.Fatal("store was mutated despite CAS conflict")
	}
}

func TestPutRejectsRevOnNewDocument(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Put(model.Document{"_id": "new-doc", "_rev": "1-aaaaaaaa"})
	if !errors.Is(err, docerr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestGenerationStrictlyIncreasing(t *testing.T) {
	e := newTestEngine(t)
	doc, err := e.Put(model.Document{"_id": "doc1"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	var prevGens []string
	prevGens = append(prevGens, doc.Rev())

	for i := 0; i < 5; i++ {
		doc, err = e.Put(model.Document{"_id": "doc1", "_rev": doc.Rev(), "n": i})
		if err != nil {
			t.Fatalf("Put #%d: %v", i, err)
		}
		prevGens = append(prevGens, doc.Rev())
	}

	for i := 1; i < len(prevGens); i++ {
		if genOf(t, prevGens[i]) <= genOf(t, prevGens[i-1]) {
			t.Fatalf("generation did not increase: %v", prevGens)
		}
	}
}

func genOf(t *testing.T, r string) int {
	t.Helper()
	var n int
	for i := 0; i < len(r) && r[i] != '-'; i++ {
		n = n*10 + int(r[i]-'0')
	}
	return n
}

func TestDelIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Put(model.Document{"_id": "doc1"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := e.Del("doc1"); err != nil {
		t.Fatalf("first Del: %v", err)
	}
	if err := e.Del("doc1"); err != nil {
		t.Fatalf("second Del: %v", err)
	}
	if _, err := e.Get("doc1"); !errors.Is(err, docerr.ErrNotFound) {
		t.Fatalf("Get after Del = %v, want ErrNotFound", err)
	}
}

func TestReplaceExactPreservesByteIdentity(t *testing.T) {
	e := newTestEngine(t)
	original, err := e.Put(model.Document{"_id": "doc1", "v": 1})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, err = e.Put(model.Document{"_id": "doc1", "_rev": original.Rev(), "v": 2})
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}

	err = e.WithDocTransaction("doc1", func(tx *Tx) error {
		current, err := tx.Get()
		if err != nil {
			return err
		}
		return tx.ReplaceExact(original, current.Rev())
	})
	if err != nil {
		t.Fatalf("ReplaceExact: %v", err)
	}

	got, err := e.Get("doc1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	gotJSON, err := model.Marshal(got)
	if err != nil {
		t.Fatalf("Marshal(got): %v", err)
	}
	wantJSON, err := model.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal(original): %v", err)
	}
	if string(gotJSON) != string(wantJSON) {
		t.Fatalf("after rollback, Get() = %s, want byte-identical %s", gotJSON, wantJSON)
	}
}

func TestApplyRemotePutTwiceSecondConflicts(t *testing.T) {
	e := newTestEngine(t)
	doc := model.Document{"_id": "doc1", "_rev": "1-aaaaaaaa", "v": 1}

	if err := e.ApplyRemotePut(doc, ""); err != nil {
		t.Fatalf("first ApplyRemotePut: %v", err)
	}
	err := e.ApplyRemotePut(doc, "")
	if !errors.Is(err, docerr.ErrConflict) {
		t.Fatalf("second ApplyRemotePut err = %v, want ErrConflict (stale prevRev)", err)
	}
}

func TestApplyRemoteDelIdempotentWithMatchingRev(t *testing.T) {
	e := newTestEngine(t)
	doc := model.Document{"_id": "doc1", "_rev": "1-aaaaaaaa"}
	if err := e.ApplyRemotePut(doc, ""); err != nil {
		t.Fatalf("ApplyRemotePut: %v", err)
	}
	if err := e.ApplyRemoteDel("doc1", "1-aaaaaaaa"); err != nil {
		t.Fatalf("ApplyRemoteDel: %v", err)
	}
	if err := e.ApplyRemoteDel("doc1", ""); err != nil {
		t.Fatalf("ApplyRemoteDel on absent doc: %v", err)
	}
}

func TestWithDocTransactionSerialisesAndObservesWrites(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Put(model.Document{"_id": "doc1", "n": 0}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	firstDone := make(chan struct{})
	go func() {
		defer wg.Done()
		err := e.WithDocTransaction("doc1", func(tx *Tx) error {
			defer close(firstDone)
			current, err := tx.Get()
			if err != nil {
				return err
			}
			time.Sleep(100 * time.Millisecond)
			_, err = tx.Put(model.Document{"_id": "doc1", "_rev": current.Rev(), "n": 1})
			return err
		})
		if err != nil {
			t.Errorf("first transaction: %v", err)
		}
	}()

	// Give the first goroutine time to acquire the lock before we start.
	time.Sleep(20 * time.Millisecond)

	var secondSawN1 bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := e.WithDocTransaction("doc1", func(tx *Tx) error {
			select {
			case <-firstDone:
			default:
				t.Error("second transaction's body started before the first one finished")
			}
			current, err := tx.Get()
			if err != nil {
				return err
			}
			secondSawN1 = current["n"] == float64(1) || current["n"] == 1
			return nil
		})
		if err != nil {
			t.Errorf("second transaction: %v", err)
		}
	}()

	wg.Wait()
	if !secondSawN1 {
		t.Fatal("second transaction did not observe the first transaction's write")
	}
}
