// Package app wires the stores, data source and run pipeline from a loaded
// Config. Both binaries build on it.
package app

import (
	"errors"
	"fmt"
	"log"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"forwardtest/config"
	"forwardtest/internal/marketdata"
	"forwardtest/internal/marketdata/replay"
	"forwardtest/internal/metrics"
	"forwardtest/internal/notification"
	"forwardtest/internal/pipeline"
	redisstore "forwardtest/internal/store/redis"
	"forwardtest/internal/store/snapshot"
	sqlitestore "forwardtest/internal/store/sqlite"
)

// Options select how the stack is built.
type Options struct {
	// Offline replays bars saved in SQLite instead of calling CoinGecko.
	Offline bool
	// Registerer receives the collectors; nil uses a private registry.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// Stack is everything a run needs. SQLite and Redis are nil when disabled.
type Stack struct {
	Config    *config.Config
	SQLite    *sqlitestore.Store
	Redis     *redisstore.Client
	Results   *redisstore.ResultsCache
	Snapshots *snapshot.Store
	Source    marketdata.Source
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Build opens the configured stores and assembles the data source:
// CoinGecko, then the SQLite bar archive, then the Redis OHLC cache. A
// Redis server that cannot be reached is logged and skipped.
func Build(cfg *config.Config, opts Options) (*Stack, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	s := &Stack{
		Config:  cfg,
		Metrics: metrics.New(opts.Registerer),
		Logger:  opts.Logger,
	}

	snaps, err := snapshot.New(cfg.Storage.SnapshotDir)
	if err != nil {
		return nil, err
	}
	s.Snapshots = snaps

	if cfg.Storage.SQLitePath != "" {
		db, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.Storage.SQLitePath})
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		s.SQLite = db
	}

	rdb, err := redisstore.New(redisstore.Config{
		Addr:     cfg.Storage.RedisAddr,
		Password: cfg.Storage.RedisPassword,
		DB:       cfg.Storage.RedisDB,
	})
	if err != nil {
		log.Printf("[app] redis unavailable, continuing without cache: %v", err)
	}
	if rdb != nil {
		b := rdb.Breaker()
		logChange := b.OnStateChange
		b.OnStateChange = func(from, to redisstore.State) {
			if logChange != nil {
				logChange(from, to)
			}
			s.Metrics.SetBreakerState(int(to))
		}
	}
	s.Redis = rdb
	s.Results = redisstore.NewResultsCache(rdb, "", "")

	if opts.Offline {
		if s.SQLite == nil {
			s.Close()
			return nil, errors.New("offline mode needs storage.sqlite_path")
		}
		s.Source = replay.New(s.SQLite)
		return s, nil
	}

	var src marketdata.Source = marketdata.NewCoinGecko(
		cfg.Data.CoinGeckoBaseURL,
		cfg.FetchTimeout(),
		cfg.Data.RequestsPerMinute,
		marketdata.WithLogger(opts.Logger),
	)
	if s.SQLite != nil {
		src = sqlitestore.NewCachingSource(src, s.SQLite)
	}
	s.Source = redisstore.NewCachingSource(rdb, cfg.CacheTTL(), src, "")
	return s, nil
}

// Notifiers returns the process-wide notification channels: the log, and
// the webhook when configured.
func (s *Stack) Notifiers() []notification.Notifier {
	out := []notification.Notifier{notification.NewLogNotifier()}
	if s.Config.Notify.WebhookURL != "" {
		out = append(out, notification.NewWebhookNotifier(s.Config.Notify.WebhookURL))
	}
	return out
}

// Runner builds a pipeline.Runner over the stack. extra notifiers and
// publishers are added to the defaults.
func (s *Stack) Runner(extra []notification.Notifier, publishers ...pipeline.ResultsPublisher) (*pipeline.Runner, error) {
	deps := pipeline.Deps{
		Source:     s.Source,
		Notifiers:  append(s.Notifiers(), extra...),
		Snapshots:  s.Snapshots,
		Publishers: append([]pipeline.ResultsPublisher{s.Results}, publishers...),
		Metrics:    s.Metrics,
		Logger:     s.Logger,
		Asset:      s.Config.Data.Asset,
		Dispatch: notification.DispatcherConfig{
			QueueSize: s.Config.Notify.QueueSize,
			MaxBlock:  s.Config.NotifyMaxBlock(),
		},
	}
	if s.SQLite != nil {
		deps.Journal = s.SQLite
	}
	return pipeline.New(deps)
}

// Close releases the stores.
func (s *Stack) Close() {
	if s.SQLite != nil {
		if err := s.SQLite.Close(); err != nil {
			log.Printf("[app] sqlite close: %v", err)
		}
	}
	if err := s.Redis.Close(); err != nil {
		log.Printf("[app] redis close: %v", err)
	}
}
