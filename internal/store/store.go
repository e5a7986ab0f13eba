// Package store provides the keyed storage substrate for the passport registry.
// Values are opaque bytes grouped into named buckets; writes are staged in a
// Batch and applied atomically by each backend.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when a key is absent.
var ErrNotFound = errors.New("not found")

// Store defines the contract for a keyed storage backend.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, bucket string, key []byte) ([]byte, error)

	// Has reports whether key is present in bucket.
	Has(ctx context.Context, bucket string, key []byte) (bool, error)

	// Apply commits every write in the batch or none of them.
	Apply(ctx context.Context, b *Batch) error

	// Close releases resources.
	Close() error
}

// Write is a single staged mutation. A nil Value with Delete set removes the key.
type Write struct {
	Bucket string
	Key    []byte
	Value  []byte
	Delete bool
}

// Batch collects writes to be applied together
type Batch struct {
	writes []Write
}

// Put stages an insert or overwrite.
func (b *Batch) Put(bucket string, key, value []byte) {
	b.writes = append(b.writes, Write{Bucket: bucket, Key: key, Value: value})
}

// Delete stages a removal.
func (b *Batch) Delete(bucket string, key []byte) {
	b.writes = append(b.writes, Write{Bucket: bucket, Key: key, Delete: true})
}

// Writes returns the staged writes in order.
func (b *Batch) Writes() []Write {
	return b.writes
}

// Len returns the number of staged writes.
func (b *Batch) Len() int {
	return len(b.writes)
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bbolt"
	BackendLevelDB  = "leveldb"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path is the database file or directory for embedded backends.
	Path string
	// DSN is the connection string for postgres.
	DSN string
}

// Open creates the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendBolt, "":
		return NewBoltStore(opts.Path)
	case BackendLevelDB:
		return NewLevelStore(opts.Path)
	case BackendSQLite:
		return NewSQLiteStore(ctx, opts.Path)
	case BackendPostgres:
		return NewPostgresStore(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
