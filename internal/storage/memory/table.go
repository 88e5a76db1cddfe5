// Package memory keeps records in process memory. Nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"github.com/unichat/internal/model"
	"github.com/unichat/internal/storage"
)

// Table is a map index plus an insertion-order slice guarded by one RWMutex.
type Table[T storage.Record] struct {
	mu    sync.RWMutex
	rows  map[string]T
	order []string
}

func NewTable[T storage.Record]() *Table[T] {
	return &Table[T]{rows: make(map[string]T)}
}

func (t *Table[T]) Get(_ context.Context, id string) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.rows[id]
	if !ok {
		var zero T
		return zero, storage.ErrNotFound
	}
	return rec, nil
}

func (t *Table[T]) List(_ context.Context, match func(T) bool) ([]T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		rec := t.rows[id]
		if match == nil || match(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (t *Table[T]) Put(_ context.Context, rec T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set(rec)
	return nil
}

func (t *Table[T]) Append(_ context.Context, rec T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[rec.RecordID()]; ok {
		return storage.ErrConflict
	}
	t.set(rec)
	return nil
}

func (t *Table[T]) set(rec T) bool {
	id := rec.RecordID()
	_, exists := t.rows[id]
	if !exists {
		t.order = append(t.order, id)
	}
	t.rows[id] = rec
	return !exists
}

// New returns a Store with empty in-memory tables.
func New() *storage.Store {
	return &storage.Store{
		Users:         NewTable[model.User](),
		Chats:         NewTable[model.Chat](),
		Messages:      NewTable[model.Message](),
		Groups:        NewTable[model.Group](),
		Announcements: NewTable[model.Announcement](),
	}
}

var _ storage.Table[model.Message] = (*Table[model.Message])(nil)
