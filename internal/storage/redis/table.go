// Package redis stores each table as a hash of JSON rows plus a list holding insertion order.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unichat/internal/logger"
	"github.com/unichat/internal/model"
	"github.com/unichat/internal/storage"
)

// Table keys: {prefix}:{table}:rows (id -> JSON) and {prefix}:{table}:order (ids).
type Table[T storage.Record] struct {
	mu       sync.Mutex
	cli      *redis.Client
	name     string
	rowsKey  string
	orderKey string
}

func newTable[T storage.Record](cli *redis.Client, prefix, name string) *Table[T] {
	return &Table[T]{
		cli:      cli,
		name:     name,
		rowsKey:  prefix + ":" + name + ":rows",
		orderKey: prefix + ":" + name + ":order",
	}
}

func (t *Table[T]) Get(ctx context.Context, id string) (T, error) {
	defer logger.DeferLogDuration("redis.Get "+t.name, time.Now())()
	var rec T
	raw, err := t.cli.HGet(ctx, t.rowsKey, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, storage.ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("redis.Get %s: %w", t.name, err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("redis.Get %s decode: %w", t.name, err)
	}
	return rec, nil
}

func (t *Table[T]) List(ctx context.Context, match func(T) bool) ([]T, error) {
	defer logger.DeferLogDuration("redis.List "+t.name, time.Now())()
	ids, err := t.cli.LRange(ctx, t.orderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis.List %s: %w", t.name, err)
	}
	if len(ids) == 0 {
		return []T{}, nil
	}
	vals, err := t.cli.HMGet(ctx, t.rowsKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis.List %s: %w", t.name, err)
	}
	out := make([]T, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			logger.Errorf("redis: %s order lists %s without a row", t.name, ids[i])
			continue
		}
		var rec T
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("redis.List %s decode %s: %w", t.name, ids[i], err)
		}
		if match == nil || match(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (t *Table[T]) Append(ctx context.Context, rec T) error {
	defer logger.DeferLogDuration("redis.Append "+t.name, time.Now())()
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis.Append %s encode: %w", t.name, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	added, err := t.cli.HSetNX(ctx, t.rowsKey, rec.RecordID(), raw).Result()
	if err != nil {
		return fmt.Errorf("redis.Append %s: %w", t.name, err)
	}
	if !added {
		return storage.ErrConflict
	}
	if err := t.cli.RPush(ctx, t.orderKey, rec.RecordID()).Err(); err != nil {
		return fmt.Errorf("redis.Append %s order: %w", t.name, err)
	}
	return nil
}

func (t *Table[T]) Put(ctx context.Context, rec T) error {
	defer logger.DeferLogDuration("redis.Put "+t.name, time.Now())()
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis.Put %s encode: %w", t.name, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	added, err := t.cli.HSet(ctx, t.rowsKey, rec.RecordID(), raw).Result()
	if err != nil {
		return fmt.Errorf("redis.Put %s: %w", t.name, err)
	}
	if added == 1 {
		if err := t.cli.RPush(ctx, t.orderKey, rec.RecordID()).Err(); err != nil {
			return fmt.Errorf("redis.Put %s order: %w", t.name, err)
		}
	}
	return nil
}

// Open builds a Store whose keys all start with prefix. Close closes cli.
func Open(cli *redis.Client, prefix string) *storage.Store {
	if prefix == "" {
		prefix = "unichat"
	}
	s := &storage.Store{
		Users:         newTable[model.User](cli, prefix, storage.TableUsers),
		Chats:         newTable[model.Chat](cli, prefix, storage.TableChats),
		Messages:      newTable[model.Message](cli, prefix, storage.TableMessages),
		Groups:        newTable[model.Group](cli, prefix, storage.TableGroups),
		Announcements: newTable[model.Announcement](cli, prefix, storage.TableAnnouncements),
	}
	s.OnClose(func(context.Context) error { return cli.Close() })
	return s
}

// Connect parses url and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return cli, nil
}

var _ storage.Table[model.User] = (*Table[model.User])(nil)
