// Package redis provides a Redis-backed key-value store. Each value is one JSON string
// under the key <prefix>:<namespace>:<key>.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/warden/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "warden"

// Persistence implements persistence.KV on top of Redis.
type Persistence struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewPersistence connects to the Redis server at databaseURL (redis:// or rediss://).
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr, "db", opts.DB)

	return NewWithClient(client, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, logger *slog.Logger) *Persistence {
	return &Persistence{
		client: client,
		prefix: defaultPrefix,
		logger: logger.With("module", "redis_persistence"),
	}
}

func (p *Persistence) key(namespace, key string) string {
	return p.prefix + ":" + namespace + ":" + key
}

// Load reads and decodes the value stored under namespace/key.
func (p *Persistence) Load(ctx context.Context, namespace, key string, out any) (bool, error) {
	body, err := p.client.Get(ctx, p.key(namespace, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}

		return false, persistence.NewKVError("Load", namespace, key, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return false, persistence.NewKVError("Load", namespace, key, fmt.Errorf("failed to unmarshal: %w", err))
	}

	return true, nil
}

// Save stores value under namespace/key without expiry.
func (p *Persistence) Save(ctx context.Context, namespace, key string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return persistence.NewKVError("Save", namespace, key, fmt.Errorf("failed to marshal: %w", err))
	}

	if err := p.client.Set(ctx, p.key(namespace, key), body, 0).Err(); err != nil {
		return persistence.NewKVError("Save", namespace, key, err)
	}

	return nil
}

// Delete removes namespace/key.
func (p *Persistence) Delete(ctx context.Context, namespace, key string) error {
	if err := p.client.Del(ctx, p.key(namespace, key)).Err(); err != nil {
		return persistence.NewKVError("Delete", namespace, key, err)
	}

	return nil
}

// HealthCheck pings the server.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Close closes the client.
func (p *Persistence) Close(_ context.Context) error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

var _ persistence.KV = (*Persistence)(nil)
