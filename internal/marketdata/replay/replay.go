// Package replay serves bars previously saved in the local store as a
// marketdata.Source, for offline backtests.
package replay

import (
	"context"
	"errors"
	"log"
	"time"

	"forwardtest/internal/marketdata"
	"forwardtest/internal/model"
)

// Source reads stored bars instead of calling a provider.
type Source struct {
	reader model.BarReader
}

// New creates a Source backed by a bar reader.
func New(reader model.BarReader) *Source {
	return &Source{reader: reader}
}

// FetchOHLC returns the stored bars within days of the newest stored bar.
// Anchoring on the newest bar keeps old snapshots usable.
func (s *Source) FetchOHLC(ctx context.Context, asset string, days int) ([]model.Bar, error) {
	bars, err := s.reader.LoadBars(ctx, asset, time.Time{})
	if err != nil {
		return nil, &marketdata.DataSourceError{Asset: asset, Err: err}
	}
	if len(bars) == 0 {
		return nil, &marketdata.DataSourceError{Asset: asset, Err: errors.New("no stored bars")}
	}

	cutoff := bars[len(bars)-1].TS.Add(-time.Duration(days) * 24 * time.Hour)
	start := 0
	for start < len(bars) && bars[start].TS.Before(cutoff) {
		start++
	}
	log.Printf("[replay] %s: %d stored bars, %d within %d days", asset, len(bars), len(bars)-start, days)
	return bars[start:], nil
}
