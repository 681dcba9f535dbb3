// Package redis holds the optional remote caches: fetched OHLC series and the
// latest run results. Every operation degrades to a no-op when the client is
// nil or the breaker is open, so a missing Redis never fails a run.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"; empty disables Redis
	Password string
	DB       int

	// Breaker settings; zero values pick 5 failures / 30s.
	MaxFailures  int
	ResetTimeout time.Duration
}

// Client is a Redis connection guarded by a circuit breaker.
type Client struct {
	rdb     *goredis.Client
	breaker *Breaker
}

// New connects and pings the server. An empty Addr returns (nil, nil):
// callers pass the nil *Client straight to the caches, which then bypass.
func New(cfg Config) (*Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return Wrap(rdb, cfg.MaxFailures, cfg.ResetTimeout), nil
}

// Wrap guards an existing go-redis client without pinging it.
func Wrap(rdb *goredis.Client, maxFailures int, resetTimeout time.Duration) *Client {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	b := NewBreaker(maxFailures, resetTimeout)
	b.OnStateChange = func(from, to State) {
		log.Printf("[redis] breaker %s -> %s", from, to)
	}
	return &Client{rdb: rdb, breaker: b}
}

// Raw returns the underlying go-redis client for health checks.
func (c *Client) Raw() *goredis.Client {
	if c == nil {
		return nil
	}
	return c.rdb
}

// Breaker exposes the circuit breaker state.
func (c *Client) Breaker() *Breaker {
	if c == nil {
		return nil
	}
	return c.breaker
}

// Close closes the connection pool.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// do runs fn through the breaker. A cache miss (goredis.Nil) is not a failure.
func (c *Client) do(fn func() error) error {
	var miss bool
	err := c.breaker.Execute(func() error {
		err := fn()
		if err == goredis.Nil {
			miss = true
			return nil
		}
		return err
	})
	if miss && err == nil {
		return goredis.Nil
	}
	return err
}
