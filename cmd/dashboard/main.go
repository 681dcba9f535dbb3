// cmd/dashboard serves the forward-testing dashboard: REST API, live
// WebSocket feed, Prometheus metrics and scheduled forward tests.
//
// Usage:
//
//	go run ./cmd/dashboard --config config.yaml
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"forwardtest/config"
	"forwardtest/internal/api"
	"forwardtest/internal/app"
	"forwardtest/internal/gateway"
	"forwardtest/internal/logger"
	"forwardtest/internal/metrics"
	"forwardtest/internal/model"
	"forwardtest/internal/notification"
	"forwardtest/internal/pipeline"
	"forwardtest/internal/scheduler"
	redisstore "forwardtest/internal/store/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[dashboard] starting...")

	configPath := flag.String("config", "", "YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[dashboard] %v", err)
	}
	logg := logger.Init("dashboard", logger.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	if !strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- Metrics registry ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// ---- Stores and data source ----
	stack, err := app.Build(cfg, app.Options{Registerer: reg, Logger: logg})
	if err != nil {
		log.Fatalf("[dashboard] %v", err)
	}
	defer stack.Close()

	if wrote, err := stack.Snapshots.SeedStrategy(cfg.Strategy); err != nil {
		log.Printf("[dashboard] seed strategy: %v", err)
	} else if wrote {
		log.Printf("[dashboard] strategy seeded from config")
	}

	// ---- WebSocket hub ----
	hub := gateway.NewHub(256)
	hub.OnClientCount = stack.Metrics.SetWSClients

	// With Redis, results reach the hub through the pub/sub relay, which
	// also carries runs made by other processes such as cmd/backtest.
	var publishers []pipeline.ResultsPublisher
	if sub := stack.Results.Subscribe(ctx); sub != nil {
		defer sub.Close()
		go hub.Relay(ctx, sub.Channel())
	} else {
		publishers = append(publishers, hub)
	}
	seedHub(ctx, stack, hub)

	runner, err := stack.Runner([]notification.Notifier{hub}, publishers...)
	if err != nil {
		log.Fatalf("[dashboard] %v", err)
	}

	// ---- Health ----
	var db *sql.DB
	if stack.SQLite != nil {
		db = stack.SQLite.DB()
	}
	health := metrics.NewHealthStatus(stack.Redis != nil, db != nil)
	health.StartLivenessChecker(ctx, stack.Redis.Raw(), db, 15*time.Second)

	// ---- Background runs and schedule ----
	bg := pipeline.NewBackground(ctx, runner, logg)
	bg.OnDone = func(out *pipeline.Outcome, err error) {
		health.SetLastRun(time.Now(), err == nil)
		if err == nil {
			logg.Info("background run finished",
				slog.String("run_id", out.RunID),
				slog.Int("trades", len(out.Trades)),
				slog.Float64("final_capital", out.FinalCapital),
			)
		}
	}

	sched := scheduler.New(bg, stack.Snapshots.LoadStrategy)
	if err := sched.RegisterForward(cfg.Schedule.ForwardCron); err != nil {
		log.Fatalf("[dashboard] %v", err)
	}
	sched.Start()

	// ---- HTTP ----
	var history model.RunReader
	if stack.SQLite != nil {
		history = stack.SQLite
	}
	router := api.NewRouter(api.Options{
		Runner:     runner,
		Background: bg,
		Snapshots:  stack.Snapshots,
		History:    history,
		WS:         hub.HandleWS,
		Health:     health,
		Gatherer:   reg,
		TOTPSecret: cfg.Server.TOTPSecret,
		Logger:     logg,
	})
	srv := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: router}

	go func() {
		log.Printf("[dashboard] serving at http://localhost%s", cfg.Server.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[dashboard] server error: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Println("[dashboard] shutting down...")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[dashboard] http shutdown: %v", err)
	}
	sched.Stop()
	bg.Wait()
	hub.Close()
	log.Println("[dashboard] stopped")
}

// seedHub broadcasts the latest known results so the first WS clients get
// state: Redis first, then the snapshot file.
func seedHub(ctx context.Context, stack *app.Stack, hub *gateway.Hub) {
	var latest json.RawMessage
	if err := stack.Results.Latest(ctx, &latest); err == nil {
		hub.Broadcast(gateway.ChannelResults, latest)
		return
	} else if !errors.Is(err, redisstore.ErrNoResults) {
		log.Printf("[dashboard] redis latest results: %v", err)
	}

	res, err := stack.Snapshots.LoadResults()
	if err != nil {
		log.Printf("[dashboard] load results snapshot: %v", err)
		return
	}
	if res.LastUpdate == nil {
		return
	}
	if err := hub.Publish(ctx, res); err != nil {
		log.Printf("[dashboard] seed hub: %v", err)
	}
}
