package startup

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ConnectMongoWithRetry connects to MongoDB and pings the primary, retrying while it comes up.
func ConnectMongoWithRetry(uri string, maxWait time.Duration) (*mongo.Client, error) {
	var client *mongo.Client
	err := withRetry("mongo connect", maxWait, func() error {
		c, err := mongo.Connect(options.Client().ApplyURI(uri).SetConnectTimeout(10 * time.Second))
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Ping(ctx, nil); err != nil {
			_ = c.Disconnect(context.Background())
			return err
		}
		client = c
		return nil
	})
	return client, err
}
