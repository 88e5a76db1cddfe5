// Package storage defines the record store shared by every backend.
package storage

import (
	"context"
	"errors"

	"github.com/unichat/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Record is anything a Table can hold.
type Record interface {
	RecordID() string
}

// Table is the store contract for one record type.
// List returns records in insertion order; a nil match returns all of them.
// Put upserts by id, Append fails with ErrConflict when the id exists.
type Table[T Record] interface {
	Get(ctx context.Context, id string) (T, error)
	List(ctx context.Context, match func(T) bool) ([]T, error)
	Put(ctx context.Context, rec T) error
	Append(ctx context.Context, rec T) error
}

// Table names, shared by all backends as file, collection, key or kind names.
const (
	TableUsers         = "users"
	TableChats         = "chats"
	TableMessages      = "messages"
	TableGroups        = "groups"
	TableAnnouncements = "announcements"
)

// Store groups the tables of one backend.
type Store struct {
	Users         Table[model.User]
	Chats         Table[model.Chat]
	Messages      Table[model.Message]
	Groups        Table[model.Group]
	Announcements Table[model.Announcement]

	closer func(ctx context.Context) error
}

// OnClose registers the function Close runs. Backends call it once while building the Store.
func (s *Store) OnClose(fn func(ctx context.Context) error) {
	s.closer = fn
}

func (s *Store) Close(ctx context.Context) error {
	if s.closer == nil {
		return nil
	}
	return s.closer(ctx)
}
