package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelStore implements Store on a single LevelDB. Buckets are key prefixes
// terminated by a zero byte, so one leveldb.Batch covers every bucket.
type LevelStore struct {
	db *leveldb.DB
}

// NewLevelStore opens or creates a LevelDB directory.
func NewLevelStore(path string) (*LevelStore, error) {
	if path == "" {
		return nil, fmt.Errorf("leveldb store requires a path")
	}
	opt := &ldb_opt.Options{
		ErrorIfExist:   false,
		ErrorIfMissing: false,
	}
	db, err := leveldb.OpenFile(path, opt)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelStore{db: db}, nil
}

func prefixedKey(bucket string, key []byte) []byte {
	k := make([]byte, 0, len(bucket)+1+len(key))
	k = append(k, bucket...)
	k = append(k, 0)
	return append(k, key...)
}

func (s *LevelStore) Get(_ context.Context, bucket string, key []byte) ([]byte, error) {
	v, err := s.db.Get(prefixedKey(bucket, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb get: %w", err)
	}
	return v, nil
}

func (s *LevelStore) Has(_ context.Context, bucket string, key []byte) (bool, error) {
	ok, err := s.db.Has(prefixedKey(bucket, key), nil)
	if err != nil {
		return false, fmt.Errorf("leveldb has: %w", err)
	}
	return ok, nil
}

func (s *LevelStore) Apply(_ context.Context, b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	trx := new(leveldb.Batch)
	for _, w := range b.Writes() {
		if w.Delete {
			trx.Delete(prefixedKey(w.Bucket, w.Key))
		} else {
			trx.Put(prefixedKey(w.Bucket, w.Key), w.Value)
		}
	}
	if err := s.db.Write(trx, &ldb_opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("leveldb write: %w", err)
	}
	return nil
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}
