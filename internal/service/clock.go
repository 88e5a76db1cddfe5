package service

import (
	"time"

	"github.com/google/uuid"
)

// now is truncated to milliseconds so timestamps survive every backend unchanged.
var now = func() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
