// Package redisclient wraps go-redis for the optional cross-replica SSE
// fan-out bridge. Nil-safe: a
// process with no REDIS_URL configured runs with bridge == nil and every
// Broadcaster stays process-local.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ridgeway-transit/opscore/config"
)

// Client wraps the shared Redis connection.
type Client struct {
	c   *redis.Client
	log zerolog.Logger
}

// New creates a Redis client from the provided config. Returns an error
// if the Redis URL cannot be parsed.
func New(cfg *config.Config, log zerolog.Logger) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	r := redis.NewClient(opt)
	return &Client{c: r, log: log}, nil
}

// Ping verifies connectivity at startup.
func (c *Client) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.c.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.c.Close()
}

// Publish implements stream.Bridge: it mirrors one already-encoded SSE
// frame onto a Redis pub/sub channel for other replicas' Subscribe
// listeners to pick up.
func (c *Client) Publish(channel string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.c.Publish(ctx, channel, payload).Err()
}

// Subscribe starts a background listener that republishes every message
// received on channel into local, invoking deliver for each payload. The
// returned function cancels the subscription. Used to fan remote
// replicas' published frames back into this process's local Broadcaster.
func (c *Client) Subscribe(ctx context.Context, channel string, deliver func([]byte)) func() {
	sub := c.c.Subscribe(ctx, channel)
	ch := sub.Channel()
	done := make(chan struct{})

	go func() {
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				deliver([]byte(msg.Payload))
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		if err := sub.Close(); err != nil {
			c.log.Warn().Err(err).Str("channel", channel).Msg("redisclient: failed to close subscription")
		}
	}
}
