package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect holds the statements a SQL backend needs. Every bucket shares one
// kv table keyed by (bucket, k).
type Dialect struct {
	Name   string
	Schema string
	Get    string
	Has    string
	Put    string
	Delete string
}

// SQLiteDialect targets modernc.org/sqlite.
var SQLiteDialect = Dialect{
	Name: "sqlite",
	Schema: `CREATE TABLE IF NOT EXISTS kv (
		bucket TEXT NOT NULL,
		k BLOB NOT NULL,
		v BLOB NOT NULL,
		PRIMARY KEY (bucket, k)
	)`,
	Get:    "SELECT v FROM kv WHERE bucket = ? AND k = ?",
	Has:    "SELECT 1 FROM kv WHERE bucket = ? AND k = ?",
	Put:    "INSERT INTO kv (bucket, k, v) VALUES (?, ?, ?) ON CONFLICT(bucket, k) DO UPDATE SET v = excluded.v",
	Delete: "DELETE FROM kv WHERE bucket = ? AND k = ?",
}

// PostgresDialect targets pgx through database/sql.
var PostgresDialect = Dialect{
	Name: "postgres",
	Schema: `create table if not exists kv (
		bucket text not null,
		k bytea not null,
		v bytea not null,
		primary key (bucket, k)
	)`,
	Get:    "select v from kv where bucket = $1 and k = $2",
	Has:    "select 1 from kv where bucket = $1 and k = $2",
	Put:    "insert into kv (bucket, k, v) values ($1, $2, $3) on conflict (bucket, k) do update set v = excluded.v",
	Delete: "delete from kv where bucket = $1 and k = $2",
}

// SQLStore implements Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open database. Call Initialize before first use.
func NewSQLStore(db *sql.DB, d Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

// NewSQLiteStore opens a sqlite database file and creates the kv table.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite store requires a path")
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := NewSQLStore(db, SQLiteDialect)
	if err := s.Initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore connects with pgx and creates the kv table.
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres store requires a dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	s := NewSQLStore(db, PostgresDialect)
	if err := s.Initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Initialize creates the kv table if needed.
func (s *SQLStore) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Schema); err != nil {
		return fmt.Errorf("create %s schema: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, bucket string, key []byte) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, s.dialect.Get, bucket, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", bucket, err)
	}
	return value, nil
}

func (s *SQLStore) Has(ctx context.Context, bucket string, key []byte) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.dialect.Has, bucket, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has %s: %w", bucket, err)
	}
	return true, nil
}

// Apply runs the batch inside one SQL transaction.
func (s *SQLStore) Apply(ctx context.Context, b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, w := range b.Writes() {
		if w.Delete {
			if _, err := tx.ExecContext(ctx, s.dialect.Delete, w.Bucket, w.Key); err != nil {
				return fmt.Errorf("delete %s: %w", w.Bucket, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, s.dialect.Put, w.Bucket, w.Key, w.Value); err != nil {
			return fmt.Errorf("put %s: %w", w.Bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}
