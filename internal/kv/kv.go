// Package kv is the KV adapter (C1): an ordered, byte-keyed, durable store
// with get/put/delete and bounded key iteration, backed by BoltDB
// (go.etcd.io/bbolt) — an embedded, single-file, copy-on-write B+tree with
// ACID transactions and fsync-on-commit durability.
//
// Every operation runs inside a bolt transaction (db.View for reads,
// db.Update for writes), so callers never need to manage durability
// themselves: a successful Put or Del has already been fsynced before the
// call returns. Keys are returned in their natural sorted order by walking
// a bucket cursor, which is what makes this an "ordered" byte-keyed store
// rather than a hash map.
package kv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/distributed-docstore/docstore/internal/docerr"
)

var docsBucket = []byte("docs")

// Store is a durable, ordered key-value store rooted at a single file.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the store at <dataDir>/docstore.db, creating the
// data directory and the root bucket if they do not already exist.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dataDir, "docstore.db"), 0o600, &bolt.Options{
		Timeout: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(docsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the raw bytes stored under key, or docerr.ErrNotFound if no
// value exists. Bolt values returned from a View transaction are only valid
// for the lifetime of the transaction, so the bytes are copied out before
// the transaction closes.
func (s *Store) Get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(docsBucket).Get([]byte(key))
		if v == nil {
			return docerr.ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		if errors.Is(err, docerr.ErrNotFound) {
			return nil, docerr.ErrNotFound
		}
		return nil, fmt.Errorf("kv get %q: %w", key, err)
	}
	return out, nil
}

// Put stores value under key, fsyncing before returning (bbolt's default
// commit behavior — every Update transaction is durable on success).
func (s *Store) Put(key string, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(docsBucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("kv put %q: %w", key, err)
	}
	return nil
}

// Del removes key. It is idempotent at this layer: deleting an absent key
// is not an error.
func (s *Store) Del(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(docsBucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("kv del %q: %w", key, err)
	}
	return nil
}

// Keys returns up to limit keys in ascending key order, starting from the
// first key in the bucket.
func (s *Store) Keys(limit int) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(docsBucket).Cursor()
		for k, _ := c.First(); k != nil && len(keys) < limit; k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kv keys: %w", err)
	}
	return keys, nil
}
