// Package metrics exposes Prometheus counters for runs, trades, divergences
// and notification delivery, plus a dependency health status.
package metrics

import (
	"context"
	"database/sql"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "forwardtest"

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so tests and the CLI can skip registration.
type Metrics struct {
	RunsTotal          *prometheus.CounterVec // labels: mode, outcome
	TradesTotal        *prometheus.CounterVec // labels: side, reason
	DivergencesTotal   *prometheus.CounterVec // labels: indicator
	NotificationsTotal *prometheus.CounterVec // labels: kind, status
	NotificationDrops  prometheus.Counter
	FetchDuration      prometheus.Histogram
	RunDuration        prometheus.Histogram
	LastRunCapital     prometheus.Gauge

	RedisBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	WSClients         prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed runs by mode and outcome",
		}, []string{"mode", "outcome"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Closed simulated trades by side and exit reason",
		}, []string{"side", "reason"}),
		DivergencesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "divergences_total",
			Help:      "Divergence events detected by indicator",
		}, []string{"indicator"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by kind and status",
		}, []string{"kind", "status"}),
		NotificationDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_drops_total",
			Help:      "Notifications dropped because the queue stayed full",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "OHLC fetch latency",
			Buckets:   prometheus.DefBuckets,
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End-to-end run latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		}),
		LastRunCapital: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_capital",
			Help:      "Final capital of the most recent run",
		}),
		RedisBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "redis_circuit_breaker_state",
			Help:      "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected dashboard WebSocket clients",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.TradesTotal,
		m.DivergencesTotal,
		m.NotificationsTotal,
		m.NotificationDrops,
		m.FetchDuration,
		m.RunDuration,
		m.LastRunCapital,
		m.RedisBreakerState,
		m.WSClients,
	)
	return m
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(mode, outcome string, d time.Duration, finalCapital float64) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(mode, outcome).Inc()
	m.RunDuration.Observe(d.Seconds())
	if outcome == "ok" {
		m.LastRunCapital.Set(finalCapital)
	}
}

// ObserveFetch records an OHLC fetch latency.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// Trade counts one closed trade.
func (m *Metrics) Trade(side, reason string) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(side, reason).Inc()
}

// Divergence counts one divergence event.
func (m *Metrics) Divergence(indicator string) {
	if m == nil {
		return
	}
	m.DivergencesTotal.WithLabelValues(indicator).Inc()
}

// NotificationSent counts a delivery attempt; err == nil is "ok".
func (m *Metrics) NotificationSent(kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.NotificationsTotal.WithLabelValues(kind, status).Inc()
}

// NotificationDropped counts a message dropped on a full queue.
func (m *Metrics) NotificationDropped(kind string) {
	if m == nil {
		return
	}
	m.NotificationDrops.Inc()
}

// SetBreakerState records the Redis breaker state as an int.
func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.RedisBreakerState.Set(float64(state))
}

// SetWSClients records the connected dashboard client count.
func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.WSClients.Set(float64(n))
}

// HealthStatus tracks dependency liveness for the health endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled    bool
	RedisConnected  bool
	RedisLatencyMs  float64
	SQLiteEnabled   bool
	SQLiteOK        bool
	SQLiteLatencyMs float64
	LastRunAt       time.Time
	LastRunOK       bool
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// Health is a point-in-time copy of HealthStatus for JSON responses.
type Health struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	RedisEnabled    bool    `json:"redis_enabled"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	SQLiteEnabled   bool    `json:"sqlite_enabled"`
	SQLiteOK        bool    `json:"sqlite_ok"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	LastRunAt       string  `json:"last_run_at,omitempty"`
	LastRunOK       bool    `json:"last_run_ok"`
	LastCheckAt     string  `json:"last_check_at,omitempty"`
}

// NewHealthStatus returns a status with StartedAt set to now.
func NewHealthStatus(redisEnabled, sqliteEnabled bool) *HealthStatus {
	return &HealthStatus{
		RedisEnabled:  redisEnabled,
		SQLiteEnabled: sqliteEnabled,
		StartedAt:     time.Now(),
	}
}

// SetLastRun records the outcome of the latest run.
func (h *HealthStatus) SetLastRun(at time.Time, ok bool) {
	h.mu.Lock()
	h.LastRunAt = at
	h.LastRunOK = ok
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker probes the enabled dependencies every interval until
// ctx is done. Nil handles are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if db != nil {
			h.CheckSQLite(probeCtx, db)
		}
	}
	probe()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// Snapshot returns the current health. Disabled dependencies never degrade
// the status; an enabled one that fails its probe does.
func (h *HealthStatus) Snapshot() Health {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	if (h.RedisEnabled && !h.RedisConnected) || (h.SQLiteEnabled && !h.SQLiteOK) {
		status = "degraded"
	}

	out := Health{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteEnabled:   h.SQLiteEnabled,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastRunOK:       h.LastRunOK,
	}
	if !h.LastRunAt.IsZero() {
		out.LastRunAt = h.LastRunAt.Format(time.RFC3339)
	}
	if !h.LastCheckAt.IsZero() {
		out.LastCheckAt = h.LastCheckAt.Format(time.RFC3339)
	}
	return out
}
