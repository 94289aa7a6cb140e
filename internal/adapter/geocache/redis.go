package geocache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/crime-incident-service/internal/domain"
)

const (
	redisKeyPrefix = "geocode:"
	redisTTL       = 24 * time.Hour
)

// Redis is a Store backed by a shared Redis instance, useful when several
// replicas serve the dashboard. Failures degrade to cache misses.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Redis{client: client, logger: logger}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]domain.Place, bool) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("redis get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var places []domain.Place
	if err := json.Unmarshal(data, &places); err != nil {
		r.logger.Warn("redis entry corrupt, ignoring", "key", key, "error", err)
		return nil, false
	}
	return places, true
}

func (r *Redis) Set(ctx context.Context, key string, places []domain.Place) {
	data, err := json.Marshal(places)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, data, redisTTL).Err(); err != nil {
		r.logger.Warn("redis set failed", "key", key, "error", err)
	}
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
