// Package marketdata fetches OHLC bars from external providers.
package marketdata

import (
	"context"
	"fmt"

	"forwardtest/internal/model"
)

// Source returns bars for an asset covering the last days days, sorted
// ascending by time with unique timestamps.
type Source interface {
	FetchOHLC(ctx context.Context, asset string, days int) ([]model.Bar, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, asset string, days int) ([]model.Bar, error)

// FetchOHLC calls f.
func (f SourceFunc) FetchOHLC(ctx context.Context, asset string, days int) ([]model.Bar, error) {
	return f(ctx, asset, days)
}

// DataSourceError wraps a failed fetch. Match it with errors.As.
type DataSourceError struct {
	Asset      string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *DataSourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("marketdata: %s: status %d: %v", e.Asset, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("marketdata: %s: %v", e.Asset, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// Granularity returns the bar size a provider serves for a day span:
// ≤1 → "1m", ≤7 → "5m", else "15m". The label is informational.
func Granularity(days int) string {
	switch {
	case days <= 1:
		return "1m"
	case days <= 7:
		return "5m"
	default:
		return "15m"
	}
}

// EstimateVolume derives a synthetic base volume from a bar's range for
// providers without volume: (high-low)/close × 100000 clamped to
// [1000, 500000].
func EstimateVolume(high, low, close float64) float64 {
	if close == 0 {
		return minEstimatedVolume
	}
	v := (high - low) / close * 100000
	if v < minEstimatedVolume {
		return minEstimatedVolume
	}
	if v > maxEstimatedVolume {
		return maxEstimatedVolume
	}
	return v
}

const (
	minEstimatedVolume = 1000
	maxEstimatedVolume = 500000
)
