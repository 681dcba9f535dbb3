// Package api serves the dashboard's REST, WebSocket and metrics endpoints.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"forwardtest/internal/metrics"
	"forwardtest/internal/model"
	"forwardtest/internal/pipeline"
	"forwardtest/internal/store/snapshot"
)

// Options are the collaborators of the router. Runner and Snapshots are
// required; the rest disable their endpoint when nil.
type Options struct {
	Runner     pipeline.Executor
	Background *pipeline.Background
	Snapshots  *snapshot.Store
	History    model.RunReader
	WS         http.HandlerFunc
	Health     *metrics.HealthStatus
	Gatherer   prometheus.Gatherer
	TOTPSecret string
	Logger     *slog.Logger
}

// Server holds the handlers.
type Server struct {
	opts Options
	log  *slog.Logger
}

// NewRouter builds the gin engine with every dashboard route.
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{opts: opts, log: opts.Logger.With(slog.String("component", "api"))}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	r.GET("/api/v1/health", s.health)

	a := r.Group("/api")
	{
		a.GET("/config", s.getConfig)
		a.POST("/config", RequireTOTP(opts.TOTPSecret), s.postConfig)
		a.POST("/run-backtest", s.runBacktest)
		a.GET("/results", s.results)
		a.POST("/start-forward-test", s.startForwardTest)
		a.GET("/divergence-analysis", s.divergenceAnalysis)
	}
	if opts.History != nil {
		a.GET("/runs", s.listRuns)
		a.GET("/runs/:id", s.getRun)
	}

	if opts.WS != nil {
		r.GET("/ws", gin.WrapF(opts.WS))
	}
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

// requestLogger logs one line per request at debug level, errors at warn.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.Log(c.Request.Context(), level, "request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
		)
	}
}
