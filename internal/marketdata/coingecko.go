package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"forwardtest/internal/model"
)

const (
	defaultCoinGeckoBase = "https://api.coingecko.com/api/v3"

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// CoinGecko fetches OHLC bars from the CoinGecko public API with rate
// limiting and retries. CoinGecko has no volume on this endpoint, so
// volume is estimated from the bar range.
type CoinGecko struct {
	http      *http.Client
	base      string
	limiter   *rate.Limiter
	retryWait time.Duration
	log       *slog.Logger
}

// Option configures a CoinGecko client.
type Option func(*CoinGecko)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *CoinGecko) { c.http = h }
}

// WithRetryWait sets the base backoff between retries.
func WithRetryWait(d time.Duration) Option {
	return func(c *CoinGecko) { c.retryWait = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *CoinGecko) { c.log = l }
}

// NewCoinGecko creates a client. An empty base uses the production URL;
// perMinute <= 0 disables rate limiting.
func NewCoinGecko(base string, timeout time.Duration, perMinute int, opts ...Option) *CoinGecko {
	if base == "" {
		base = defaultCoinGeckoBase
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		lim = rate.NewLimiter(rate.Limit(float64(perMinute)/60), 1)
	}
	c := &CoinGecko{
		http:      &http.Client{Timeout: timeout},
		base:      base,
		limiter:   lim,
		retryWait: baseRetryWait,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With(slog.String("component", "coingecko"))
	return c
}

// FetchOHLC downloads GET /coins/{asset}/ohlc?vs_currency=usd&days=N.
func (c *CoinGecko) FetchOHLC(ctx context.Context, asset string, days int) ([]model.Bar, error) {
	u := fmt.Sprintf("%s/coins/%s/ohlc?%s", c.base, url.PathEscape(asset), url.Values{
		"vs_currency": {"usd"},
		"days":        {strconv.Itoa(days)},
	}.Encode())

	c.log.Info("fetching OHLC",
		slog.String("asset", asset),
		slog.Int("days", days),
		slog.String("granularity", Granularity(days)),
	)

	var rows [][]float64
	if status, err := c.getWithRetry(ctx, u, &rows); err != nil {
		return nil, &DataSourceError{Asset: asset, StatusCode: status, Err: err}
	}
	if len(rows) == 0 {
		return nil, &DataSourceError{Asset: asset, Err: errors.New("empty payload")}
	}

	bars, err := parseOHLC(rows)
	if err != nil {
		return nil, &DataSourceError{Asset: asset, Err: err}
	}
	c.log.Info("OHLC loaded", slog.String("asset", asset), slog.Int("bars", len(bars)))
	return bars, nil
}

// parseOHLC converts [ms, open, high, low, close] rows into bars sorted by
// time. Duplicate timestamps keep the last row.
func parseOHLC(rows [][]float64) ([]model.Bar, error) {
	byTS := make(map[int64]model.Bar, len(rows))
	for i, r := range rows {
		if len(r) < 5 {
			return nil, fmt.Errorf("row %d: want 5 fields, got %d", i, len(r))
		}
		for _, v := range r {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("row %d: non-finite value", i)
			}
		}
		ms := int64(r[0])
		b := model.Bar{
			TS:    time.UnixMilli(ms).UTC(),
			Open:  r[1],
			High:  r[2],
			Low:   r[3],
			Close: r[4],
		}
		b.Volume = EstimateVolume(b.High, b.Low, b.Close)
		byTS[ms] = b
	}

	bars := make([]model.Bar, 0, len(byTS))
	for _, b := range byTS {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].TS.Before(bars[j].TS) })
	return bars, nil
}

// getWithRetry does a GET with rate limiting and exponential backoff on
// transport errors, 429 and 5xx. It returns the last HTTP status seen.
func (c *CoinGecko) getWithRetry(ctx context.Context, u string, out any) (int, error) {
	status := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return status, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return status, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil || attempt == maxRetries {
				return status, fmt.Errorf("request failed after %d attempts: %w", attempt+1, err)
			}
			c.sleep(ctx, attempt)
			continue
		}
		status = resp.StatusCode

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			c.log.Warn("retryable response", slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt+1))
			if attempt == maxRetries {
				return status, fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			return status, fmt.Errorf("client error: %s", string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return status, fmt.Errorf("decode response: %w", err)
		}
		return status, nil
	}
	return status, fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep waits with exponential backoff, respecting the context.
func (c *CoinGecko) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
