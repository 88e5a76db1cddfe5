package startup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	redisstore "github.com/unichat/internal/storage/redis"
)

// ConnectRedisWithRetry connects to Redis, retrying while the server comes up.
func ConnectRedisWithRetry(redisURL string, maxWait time.Duration) (*redis.Client, error) {
	var cli *redis.Client
	err := withRetry("redis connect", maxWait, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := redisstore.Connect(ctx, redisURL)
		if err != nil {
			return err
		}
		cli = c
		return nil
	})
	return cli, err
}
