package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-sessionkit"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Entry is the Bun model for one key-value pair.
type Entry struct {
	bun.BaseModel `bun:"table:kv_entries,alias:kve"`

	Key       string    `bun:"key,pk"`
	Value     string    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// KVStore is a persistent key-value store backed by Bun. It is safe for use
// across goroutines and across processes sharing the same database file.
type KVStore struct {
	db *bun.DB
}

var (
	_ sessionkit.Store = (*KVStore)(nil)
	_ sessionkit.Store = (*Memory)(nil)

	_ sessionkit.SnapshotStore = (*Snapshots)(nil)
	_ sessionkit.SnapshotStore = (*MemorySnapshots)(nil)
)

// Open opens (or creates) the store at dsn. Use ":memory:" for an ephemeral
// store.
func Open(ctx context.Context, dsn string) (*KVStore, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "opening store database")
	}
	sqldb.SetMaxOpenConns(1)

	return New(ctx, bun.NewDB(sqldb, sqlitedialect.New()))
}

// New wraps an existing Bun handle and ensures the schema exists.
func New(ctx context.Context, db *bun.DB) (*KVStore, error) {
	_, err := db.NewCreateTable().
		Model((*Entry)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "creating kv_entries table")
	}

	return &KVStore{db: db}, nil
}

// DB exposes the underlying handle so callers can share it with other
// repositories.
func (s *KVStore) DB() *bun.DB {
	return s.db
}

func (s *KVStore) Close() error {
	return s.db.Close()
}

func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	entry := &Entry{}
	err := s.db.NewSelect().
		Model(entry).
		Where("?TableAlias.key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, errors.CategoryInternal, "reading store key").
			WithMetadata(map[string]any{"key": key})
	}

	return entry.Value, true, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	entry := &Entry{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}

	_, err := s.db.NewInsert().
		Model(entry).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "writing store key").
			WithMetadata(map[string]any{"key": key})
	}

	return nil
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*Entry)(nil)).
		Where("?TableAlias.key = ?", key).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "deleting store key").
			WithMetadata(map[string]any{"key": key})
	}

	return nil
}

// DeleteMatching removes every entry whose key matches any of the SQL LIKE
// patterns and reports the number of rows removed. An empty pattern list is a
// no-op rather than a full wipe.
func (s *KVStore) DeleteMatching(ctx context.Context, patterns ...string) (int, error) {
	if len(patterns) == 0 {
		return 0, nil
	}

	res, err := s.db.NewDelete().
		Model((*Entry)(nil)).
		WhereGroup(" AND ", func(q *bun.DeleteQuery) *bun.DeleteQuery {
			for _, pattern := range patterns {
				q = q.WhereOr("?TableAlias.key LIKE ?", pattern)
			}
			return q
		}).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "deleting matching store keys")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}

	return int(affected), nil
}
