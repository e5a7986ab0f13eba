package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns a fresh instance of every embedded backend.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	bolt, err := NewBoltStore(filepath.Join(dir, "bolt", "test.db"))
	require.NoError(t, err)
	level, err := NewLevelStore(filepath.Join(dir, "level"))
	require.NoError(t, err)
	lite, err := NewSQLiteStore(ctx, filepath.Join(dir, "test.sqlite"))
	require.NoError(t, err)

	all := map[string]Store{
		BackendMemory:  NewMemoryStore(),
		BackendBolt:    bolt,
		BackendLevelDB: level,
		BackendSQLite:  lite,
	}
	t.Cleanup(func() {
		for _, s := range all {
			s.Close()
		}
	})
	return all
}

func TestStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "records", []byte("nope"))
			assert.ErrorIs(t, err, ErrNotFound)

			ok, err := s.Has(ctx, "records", []byte("nope"))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_ApplyPutGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var b Batch
			b.Put("records", []byte("a"), []byte("1"))
			b.Put("owners", []byte("a"), []byte("alice"))
			require.NoError(t, s.Apply(ctx, &b))

			v, err := s.Get(ctx, "records", []byte("a"))
			require.NoError(t, err)
			assert.Equal(t, []byte("1"), v)

			// Same key in another bucket is independent
			v, err = s.Get(ctx, "owners", []byte("a"))
			require.NoError(t, err)
			assert.Equal(t, []byte("alice"), v)

			var b2 Batch
			b2.Put("records", []byte("a"), []byte("2"))
			b2.Delete("owners", []byte("a"))
			require.NoError(t, s.Apply(ctx, &b2))

			v, err = s.Get(ctx, "records", []byte("a"))
			require.NoError(t, err)
			assert.Equal(t, []byte("2"), v)

			ok, err := s.Has(ctx, "owners", []byte("a"))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_BatchOrderLastWriteWins(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var b Batch
			b.Put("balances", []byte("x"), []byte("1"))
			b.Delete("balances", []byte("x"))
			b.Put("balances", []byte("x"), []byte("3"))
			require.NoError(t, s.Apply(ctx, &b))

			v, err := s.Get(ctx, "balances", []byte("x"))
			require.NoError(t, err)
			assert.Equal(t, []byte("3"), v)
		})
	}
}

func TestStore_EmptyBatch(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, s.Apply(ctx, &Batch{}))
		})
	}
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	val := []byte("abc")
	var b Batch
	b.Put("k", []byte("1"), val)
	require.NoError(t, s.Apply(ctx, &b))
	val[0] = 'z'

	got, err := s.Get(ctx, "k", []byte("1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	got[1] = 'z'
	again, err := s.Get(ctx, "k", []byte("1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestBoltStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := NewBoltStore(path)
	require.NoError(t, err)
	var b Batch
	b.Put("meta", []byte("next_token_id"), []byte("7"))
	require.NoError(t, s.Apply(ctx, &b))
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Get(ctx, "meta", []byte("next_token_id"))
	require.NoError(t, err)
	assert.Equal(t, []byte("7"), v)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, Options{Path: filepath.Join(dir, "default.db")})
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, s)
	s.Close()

	_, err = Open(ctx, Options{Backend: "cassandra"})
	assert.Error(t, err)

	_, err = Open(ctx, Options{Backend: BackendPostgres})
	assert.Error(t, err)
}
