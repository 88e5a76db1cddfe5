// Package postgres stores every table in one JSONB "records" table keyed by (kind, id).
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unichat/internal/logger"
	"github.com/unichat/internal/model"
	"github.com/unichat/internal/storage"
	"github.com/unichat/migrations"
)

type Table[T storage.Record] struct {
	mu   sync.Mutex
	pool *pgxpool.Pool
	kind string
}

func newTable[T storage.Record](pool *pgxpool.Pool, kind string) *Table[T] {
	return &Table[T]{pool: pool, kind: kind}
}

func (t *Table[T]) Get(ctx context.Context, id string) (T, error) {
	defer logger.DeferLogDuration("pg.Get "+t.kind, time.Now())()
	var (
		rec T
		raw []byte
	)
	err := t.pool.QueryRow(ctx, `SELECT body FROM records WHERE kind = $1 AND id = $2`, t.kind, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, storage.ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("pg.Get %s: %w", t.kind, err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("pg.Get %s decode: %w", t.kind, err)
	}
	return rec, nil
}

func (t *Table[T]) List(ctx context.Context, match func(T) bool) ([]T, error) {
	defer logger.DeferLogDuration("pg.List "+t.kind, time.Now())()
	rows, err := t.pool.Query(ctx, `SELECT body FROM records WHERE kind = $1 ORDER BY seq`, t.kind)
	if err != nil {
		return nil, fmt.Errorf("pg.List %s: %w", t.kind, err)
	}
	defer rows.Close()

	out := make([]T, 0, 64)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("pg.List %s scan: %w", t.kind, err)
		}
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("pg.List %s decode: %w", t.kind, err)
		}
		if match == nil || match(rec) {
			out = append(out, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pg.List %s: %w", t.kind, err)
	}
	return out, nil
}

func (t *Table[T]) Append(ctx context.Context, rec T) error {
	defer logger.DeferLogDuration("pg.Append "+t.kind, time.Now())()
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("pg.Append %s encode: %w", t.kind, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.pool.Exec(ctx, `INSERT INTO records (kind, id, body) VALUES ($1, $2, $3)`, t.kind, rec.RecordID(), raw)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return storage.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("pg.Append %s: %w", t.kind, err)
	}
	return nil
}

func (t *Table[T]) Put(ctx context.Context, rec T) error {
	defer logger.DeferLogDuration("pg.Put "+t.kind, time.Now())()
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("pg.Put %s encode: %w", t.kind, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.pool.Exec(ctx,
		`INSERT INTO records (kind, id, body) VALUES ($1, $2, $3)
		 ON CONFLICT (kind, id) DO UPDATE SET body = EXCLUDED.body`,
		t.kind, rec.RecordID(), raw,
	)
	if err != nil {
		return fmt.Errorf("pg.Put %s: %w", t.kind, err)
	}
	return nil
}

// Migrate applies the embedded schema files in name order. They are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	names, err := fs.Glob(migrations.Files, "*.sql")
	if err != nil {
		return fmt.Errorf("pg.Migrate: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("pg.Migrate read %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("pg.Migrate run %s: %w", name, err)
		}
	}
	logger.Infof("postgres: %d migrations applied", len(names))
	return nil
}

// Open builds a Store on pool. Close closes the pool.
func Open(pool *pgxpool.Pool) *storage.Store {
	s := &storage.Store{
		Users:         newTable[model.User](pool, storage.TableUsers),
		Chats:         newTable[model.Chat](pool, storage.TableChats),
		Messages:      newTable[model.Message](pool, storage.TableMessages),
		Groups:        newTable[model.Group](pool, storage.TableGroups),
		Announcements: newTable[model.Announcement](pool, storage.TableAnnouncements),
	}
	s.OnClose(func(context.Context) error {
		pool.Close()
		return nil
	})
	return s
}

var _ storage.Table[model.Announcement] = (*Table[model.Announcement])(nil)
