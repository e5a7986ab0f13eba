package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore implements Store using bbolt. Each bucket maps to a bbolt bucket
// and every batch is one read-write transaction.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a bbolt database at the given path.
func NewBoltStore(dbPath string) (*BoltStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("bbolt store requires a path")
	}
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt database: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the bbolt database.
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get retrieves a value. Returns ErrNotFound if the bucket or key is missing.
func (s *BoltStore) Get(_ context.Context, bucket string, key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrNotFound
		}
		data := b.Get(key)
		if data == nil {
			return ErrNotFound
		}
		// bbolt memory is only valid for the life of the transaction
		value = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Has checks if a key exists.
func (s *BoltStore) Has(_ context.Context, bucket string, key []byte) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		exists = b != nil && b.Get(key) != nil
		return nil
	})
	return exists, err
}

// Apply writes the batch in a single transaction.
func (s *BoltStore) Apply(_ context.Context, batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, w := range batch.Writes() {
			b, err := tx.CreateBucketIfNotExists([]byte(w.Bucket))
			if err != nil {
				return fmt.Errorf("create bucket %s: %w", w.Bucket, err)
			}
			if w.Delete {
				if err := b.Delete(w.Key); err != nil {
					return fmt.Errorf("delete %s/%s: %w", w.Bucket, w.Key, err)
				}
				continue
			}
			if err := b.Put(w.Key, w.Value); err != nil {
				return fmt.Errorf("put %s/%s: %w", w.Bucket, w.Key, err)
			}
		}
		return nil
	})
}
