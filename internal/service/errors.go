package service

import (
	"errors"

	"github.com/unichat/internal/storage"
)

// Error kinds. Handlers map them to HTTP statuses with errors.Is.
var (
	ErrNotFound        = storage.ErrNotFound
	ErrConflict        = storage.ErrConflict
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Error is a kind plus the message shown to the client.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Kind }

func fail(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}
