package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig names the database objects backing a MongoStore.
type MongoConfig struct {
	URI                string
	Database           string
	Collection         string
	CountersCollection string
}

// ConnectMongo dials MongoDB, pings the primary and returns a ready store
// plus the func that disconnects it.
func ConnectMongo(ctx context.Context, cfg MongoConfig, logger zerolog.Logger) (*MongoStore, func(context.Context) error, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		if derr := client.Disconnect(context.Background()); derr != nil {
			logger.Warn().Err(derr).Msg("failed to disconnect MongoDB client after ping failure")
		}
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)
	store := NewMongoStore(db.Collection(cfg.Collection), db.Collection(cfg.CountersCollection))
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	logger.Info().Str("database", cfg.Database).Str("collection", cfg.Collection).Msg("connected to MongoDB")
	return store, client.Disconnect, nil
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// ConnectRedis dials Redis, pings it and returns a ready store plus its
// closer.
func ConnectRedis(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisStore, func(context.Context) error, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	logger.Info().Str("addr", cfg.Addr).Msg("connected to Redis")
	return NewRedisStore(rdb, cfg.Prefix), func(context.Context) error { return rdb.Close() }, nil
}
