package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/baotran97/gridpulse-core/internal/infrastructure/config"
)

// Client wraps a go-redis client with connection lifecycle management.
//
// Redis backs two distinct concerns in GridPulse: the TTL-bound live device
// state store and the pub/sub event bus. Both share a single connection pool
// through this wrapper.
type Client struct {
	rdb *goredis.Client
}

// Connect establishes a Redis connection and verifies it with a ping.
//
// Parameters:
//   - ctx: Context for the connection probe
//   - cfg: Redis connection settings
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrConnectionFailed if the server is unreachable
func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectionFailed, cfg.Addr, err)
	}

	return &Client{rdb: rdb}, nil
}

// Raw returns the underlying go-redis client for packages that need direct
// command access (the device store and event bus).
func (c *Client) Raw() *goredis.Client {
	return c.rdb
}

// HealthCheck verifies the connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
