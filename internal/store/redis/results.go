package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
)

// Default keys for the results cache.
const (
	DefaultResultsKey     = "forwardtest:results:latest"
	DefaultResultsChannel = "forwardtest:results"
)

// ErrNoResults is returned by Latest when nothing has been published.
var ErrNoResults = errors.New("redis: no results published")

// ResultsCache stores the latest run results and announces new ones on a
// pub/sub channel.
type ResultsCache struct {
	client  *Client
	key     string
	channel string
}

// NewResultsCache creates a results cache. Empty key/channel use the defaults.
func NewResultsCache(client *Client, key, channel string) *ResultsCache {
	if key == "" {
		key = DefaultResultsKey
	}
	if channel == "" {
		channel = DefaultResultsChannel
	}
	return &ResultsCache{client: client, key: key, channel: channel}
}

// Publish stores v as JSON and publishes it. A nil client is a no-op.
func (r *ResultsCache) Publish(ctx context.Context, v any) error {
	if r == nil || r.client == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("results marshal: %w", err)
	}
	return r.client.do(func() error {
		pipe := r.client.rdb.TxPipeline()
		pipe.Set(ctx, r.key, b, 0)
		pipe.Publish(ctx, r.channel, b)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("results publish: %w", err)
		}
		return nil
	})
}

// Latest decodes the most recently published results into dst.
func (r *ResultsCache) Latest(ctx context.Context, dst any) error {
	if r == nil || r.client == nil {
		return ErrNoResults
	}
	var raw []byte
	err := r.client.do(func() error {
		var err error
		raw, err = r.client.rdb.Get(ctx, r.key).Bytes()
		return err
	})
	if errors.Is(err, goredis.Nil) {
		return ErrNoResults
	}
	if err != nil {
		return fmt.Errorf("results get: %w", err)
	}
	return json.Unmarshal(raw, dst)
}

// Subscribe returns a subscription to the results channel, or nil without
// a client.
func (r *ResultsCache) Subscribe(ctx context.Context) *goredis.PubSub {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.rdb.Subscribe(ctx, r.channel)
}
