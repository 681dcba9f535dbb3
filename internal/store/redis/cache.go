package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"forwardtest/internal/marketdata"
	"forwardtest/internal/model"
)

const defaultOHLCTTL = 5 * time.Minute

// CachingSource decorates a marketdata.Source with a TTL cache keyed by
// asset and day count. Cache errors never fail a fetch.
type CachingSource struct {
	inner     marketdata.Source
	client    *Client
	ttl       time.Duration
	namespace string
}

var _ marketdata.Source = (*CachingSource)(nil)

// NewCachingSource wraps inner. A nil client bypasses the cache; ttl <= 0
// falls back to 5 minutes and an empty namespace to "ohlc".
func NewCachingSource(client *Client, ttl time.Duration, inner marketdata.Source, namespace string) *CachingSource {
	if ttl <= 0 {
		ttl = defaultOHLCTTL
	}
	if namespace == "" {
		namespace = "ohlc"
	}
	return &CachingSource{inner: inner, client: client, ttl: ttl, namespace: namespace}
}

// FetchOHLC returns cached bars when present, otherwise fetches and caches.
func (c *CachingSource) FetchOHLC(ctx context.Context, asset string, days int) ([]model.Bar, error) {
	if c.client == nil {
		return c.inner.FetchOHLC(ctx, asset, days)
	}

	key := c.key(asset, days)
	var raw []byte
	err := c.client.do(func() error {
		var err error
		raw, err = c.client.rdb.Get(ctx, key).Bytes()
		return err
	})
	if err == nil && len(raw) > 0 {
		var bars []model.Bar
		if json.Unmarshal(raw, &bars) == nil && len(bars) > 0 {
			return bars, nil
		}
		_ = c.client.do(func() error { return c.client.rdb.Del(ctx, key).Err() })
	}

	bars, err := c.inner.FetchOHLC(ctx, asset, days)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(bars); err == nil {
		_ = c.client.do(func() error { return c.client.rdb.Set(ctx, key, b, c.ttl).Err() })
	}
	return bars, nil
}

func (c *CachingSource) key(asset string, days int) string {
	return fmt.Sprintf("%s:%s:%d", c.namespace, safe(asset), days)
}

func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ReplaceAll(s, ":", "_")
}
