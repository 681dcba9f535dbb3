package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forwardtest/internal/marketdata"
	"forwardtest/internal/model"
)

// ────────────────────────────────────────────────────────────
// Breaker
// ────────────────────────────────────────────────────────────

func newTestBreaker(maxFailures int, reset time.Duration) (*Breaker, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(maxFailures, reset)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	errFail := errors.New("fail")

	for i := 0; i < 3; i++ {
		assert.Equal(t, errFail, b.Execute(func() error { return errFail }))
	}
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(2, time.Minute)
	errFail := errors.New("fail")

	_ = b.Execute(func() error { return errFail })
	require.NoError(t, b.Execute(func() error { return nil }))
	_ = b.Execute(func() error { return errFail })

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker(1, 10*time.Second)
	var transitions []string
	b.OnStateChange = func(from, to State) { transitions = append(transitions, from.String()+">"+to.String()) }

	_ = b.Execute(func() error { return errors.New("down") })
	require.Equal(t, StateOpen, b.State())

	*now = now.Add(11 * time.Second)
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"closed>open", "open>half-open", "half-open>closed"}, transitions)
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, now := newTestBreaker(1, 10*time.Second)
	_ = b.Execute(func() error { return errors.New("down") })

	*now = now.Add(11 * time.Second)
	_ = b.Execute(func() error { return errors.New("still down") })
	assert.Equal(t, StateOpen, b.State())

	*now = now.Add(5 * time.Second)
	assert.ErrorIs(t, b.Execute(func() error { return nil }), ErrCircuitOpen)
}

// ────────────────────────────────────────────────────────────
// CachingSource
// ────────────────────────────────────────────────────────────

type countingSource struct {
	calls int
	bars  []model.Bar
	err   error
}

func (s *countingSource) FetchOHLC(ctx context.Context, asset string, days int) ([]model.Bar, error) {
	s.calls++
	return s.bars, s.err
}

func sampleBars() []model.Bar {
	ts := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	return []model.Bar{
		{TS: ts, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 1000},
		{TS: ts.Add(15 * time.Minute), Open: 100.5, High: 102, Low: 100, Close: 101, Volume: 1200},
	}
}

// unreachable returns a client pointed at a closed port so every call fails fast.
func unreachable(maxFailures int) *Client {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	return Wrap(rdb, maxFailures, time.Hour)
}

func TestCachingSource_NilClientBypasses(t *testing.T) {
	inner := &countingSource{bars: sampleBars()}
	src := NewCachingSource(nil, time.Minute, inner, "")

	for i := 0; i < 2; i++ {
		bars, err := src.FetchOHLC(context.Background(), "bitcoin", 7)
		require.NoError(t, err)
		assert.Len(t, bars, 2)
	}
	assert.Equal(t, 2, inner.calls)
}

func TestCachingSource_RedisDownFallsThrough(t *testing.T) {
	client := unreachable(2)
	defer client.Close()
	inner := &countingSource{bars: sampleBars()}
	src := NewCachingSource(client, time.Minute, inner, "ohlc")

	bars, err := src.FetchOHLC(context.Background(), "bitcoin", 7)
	require.NoError(t, err)
	assert.Equal(t, sampleBars(), bars)
	assert.Equal(t, 1, inner.calls)

	// GET and SET both failed, so the breaker is now open.
	assert.Equal(t, StateOpen, client.Breaker().State())

	_, err = src.FetchOHLC(context.Background(), "bitcoin", 7)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachingSource_PropagatesSourceError(t *testing.T) {
	want := &marketdata.DataSourceError{Asset: "bitcoin", StatusCode: 404, Err: errors.New("not found")}
	src := NewCachingSource(nil, 0, &countingSource{err: want}, "")

	_, err := src.FetchOHLC(context.Background(), "bitcoin", 7)
	var dse *marketdata.DataSourceError
	require.ErrorAs(t, err, &dse)
	assert.Equal(t, 404, dse.StatusCode)
}

func TestCachingSource_Key(t *testing.T) {
	src := NewCachingSource(nil, 0, &countingSource{}, "")
	assert.Equal(t, "ohlc:usd_coin:30", src.key("usd coin", 30))
	assert.Equal(t, "ohlc:a_b:1", src.key("a:b", 1))
}

// ────────────────────────────────────────────────────────────
// ResultsCache
// ────────────────────────────────────────────────────────────

func TestResultsCache_NilClient(t *testing.T) {
	rc := NewResultsCache(nil, "", "")
	assert.NoError(t, rc.Publish(context.Background(), map[string]int{"trades": 1}))

	var dst map[string]int
	assert.ErrorIs(t, rc.Latest(context.Background(), &dst), ErrNoResults)
	assert.Nil(t, rc.Subscribe(context.Background()))
}

func TestResultsCache_RedisDown(t *testing.T) {
	client := unreachable(5)
	defer client.Close()
	rc := NewResultsCache(client, "k", "c")

	err := rc.Publish(context.Background(), map[string]int{"trades": 1})
	assert.Error(t, err)

	var dst map[string]int
	err = rc.Latest(context.Background(), &dst)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoResults)
}

func TestNew_EmptyAddrDisables(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Nil(t, c.Raw())
	assert.NoError(t, c.Close())
}
