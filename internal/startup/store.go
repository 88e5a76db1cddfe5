package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unichat/internal/config"
	"github.com/unichat/internal/logger"
	"github.com/unichat/internal/storage"
	"github.com/unichat/internal/storage/csvfile"
	"github.com/unichat/internal/storage/memory"
	mongostore "github.com/unichat/internal/storage/mongo"
	"github.com/unichat/internal/storage/postgres"
	redisstore "github.com/unichat/internal/storage/redis"
)

// connectWait bounds how long OpenStore waits for an external backend.
const connectWait = 60 * time.Second

// OpenStore opens the backend named by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg *config.Config) (*storage.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Info("store: memory (nothing survives a restart)")
		return memory.New(), nil

	case config.BackendCSV:
		logger.Infof("store: csv files in %s", cfg.DataDir)
		return csvfile.Open(cfg.DataDir)

	case config.BackendMongo:
		client, err := ConnectMongoWithRetry(cfg.Mongo.URI, connectWait)
		if err != nil {
			return nil, err
		}
		s, err := mongostore.Open(ctx, client, cfg.Mongo.Database)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		logger.Infof("store: mongo database %s", cfg.Mongo.Database)
		return s, nil

	case config.BackendRedis:
		cli, err := ConnectRedisWithRetry(cfg.Redis.URL, connectWait)
		if err != nil {
			return nil, err
		}
		logger.Infof("store: redis prefix %s", cfg.Redis.Prefix)
		return redisstore.Open(cli, cfg.Redis.Prefix), nil

	case config.BackendPostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
		if err != nil {
			return nil, fmt.Errorf("parse db config: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.DBMaxConnections())
		pool, err := ConnectDBWithRetry(poolCfg, connectWait)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("store: postgres, migrations applied")
		return postgres.Open(pool), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
