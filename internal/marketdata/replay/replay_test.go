package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forwardtest/internal/marketdata"
	"forwardtest/internal/model"
)

type fakeReader struct {
	bars []model.Bar
	err  error
}

func (f *fakeReader) LoadBars(_ context.Context, _ string, _ time.Time) ([]model.Bar, error) {
	return f.bars, f.err
}

func hourly(n int) []model.Bar {
	t0 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Bar, n)
	for i := range out {
		out[i] = model.Bar{TS: t0.Add(time.Duration(i) * time.Hour), Close: float64(i + 1)}
	}
	return out
}

func TestSource_TrimsToDaysOfNewestBar(t *testing.T) {
	src := New(&fakeReader{bars: hourly(100)})

	bars, err := src.FetchOHLC(context.Background(), "bitcoin", 1)
	require.NoError(t, err)
	// newest is hour 99; cutoff hour 75 inclusive → 25 bars
	assert.Len(t, bars, 25)
	assert.Equal(t, 76.0, bars[0].Close)
}

func TestSource_Empty(t *testing.T) {
	_, err := New(&fakeReader{}).FetchOHLC(context.Background(), "bitcoin", 1)
	var dsErr *marketdata.DataSourceError
	require.ErrorAs(t, err, &dsErr)
}

func TestSource_ReaderError(t *testing.T) {
	boom := errors.New("disk gone")
	_, err := New(&fakeReader{err: boom}).FetchOHLC(context.Background(), "bitcoin", 1)
	assert.ErrorIs(t, err, boom)
}
