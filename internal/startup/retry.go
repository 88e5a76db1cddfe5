package startup

import (
	"fmt"
	"time"

	"github.com/unichat/internal/logger"
)

// withRetry calls connect until it succeeds or maxWait has passed, doubling the pause
// between attempts up to 30s.
func withRetry(what string, maxWait time.Duration, connect func() error) error {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		err := connect()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s (gave up after %v): %w", what, maxWait, err)
		}
		logger.Errorf("%s failed, retry in %v: %v", what, backoff, err)
		time.Sleep(backoff)
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
