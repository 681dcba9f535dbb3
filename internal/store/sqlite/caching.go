package sqlite

import (
	"context"
	"log"

	"forwardtest/internal/marketdata"
	"forwardtest/internal/model"
)

// CachingSource persists every successful fetch of the inner source so
// later runs can replay it offline. Fetch failures are returned as-is;
// stored bars never stand in for a failed fetch.
type CachingSource struct {
	inner marketdata.Source
	store model.BarWriter
}

// NewCachingSource wraps inner. A nil store disables persistence.
func NewCachingSource(inner marketdata.Source, store model.BarWriter) *CachingSource {
	return &CachingSource{inner: inner, store: store}
}

// FetchOHLC fetches through the inner source and saves the result.
func (c *CachingSource) FetchOHLC(ctx context.Context, asset string, days int) ([]model.Bar, error) {
	bars, err := c.inner.FetchOHLC(ctx, asset, days)
	if err != nil {
		return nil, err
	}
	if c.store != nil {
		// best-effort
		if err := c.store.SaveBars(ctx, asset, bars); err != nil {
			log.Printf("[sqlite] save %d bars for %s failed: %v", len(bars), asset, err)
		}
	}
	return bars, nil
}
