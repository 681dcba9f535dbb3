package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"forwardtest/config"
	"forwardtest/internal/divergence"
	"forwardtest/internal/indicator"
	"forwardtest/internal/marketdata"
	"forwardtest/internal/metrics"
	"forwardtest/internal/pipeline"
	"forwardtest/internal/strategy"
)

type healthResponse struct {
	metrics.Health
	ForwardRunning bool `json:"forward_running"`
}

func (s *Server) health(c *gin.Context) {
	var h metrics.Health
	if s.opts.Health != nil {
		h = s.opts.Health.Snapshot()
	} else {
		h.Status = "healthy"
	}
	c.JSON(http.StatusOK, healthResponse{
		Health:         h,
		ForwardRunning: s.opts.Background != nil && s.opts.Background.Running(),
	})
}

func (s *Server) getConfig(c *gin.Context) {
	st, err := s.opts.Snapshots.LoadStrategy()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) postConfig(c *gin.Context) {
	st, changed, err := s.overlay(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if changed {
		if err := s.opts.Snapshots.SaveStrategy(st); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "config": st})
}

func (s *Server) runBacktest(c *gin.Context) {
	st, changed, err := s.overlay(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if changed {
		// Overrides are saved as the new config, so they need the same code
		// as POST /api/config.
		if msg := totpError(c, s.opts.TOTPSecret); msg != "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		if err := s.opts.Snapshots.SaveStrategy(st); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	out, err := s.opts.Runner.Run(c.Request.Context(), pipeline.Request{Mode: pipeline.ModeBacktest, Strategy: st})
	if s.opts.Health != nil {
		s.opts.Health.SetLastRun(time.Now(), err == nil)
	}
	if err != nil {
		c.JSON(runStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out.Snapshot())
}

func (s *Server) results(c *gin.Context) {
	res, err := s.opts.Snapshots.LoadResults()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) startForwardTest(c *gin.Context) {
	if s.opts.Background == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "forward testing is not enabled"})
		return
	}
	st, err := s.opts.Snapshots.LoadStrategy()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !s.opts.Background.TryStart(pipeline.Request{Mode: pipeline.ModeForward, Strategy: st}) {
		c.JSON(http.StatusConflict, gin.H{"error": "forward test already running"})
		return
	}
	s.log.Info("forward test started")
	c.JSON(http.StatusAccepted, gin.H{"status": "started", "message": "Forward test started in background"})
}

func (s *Server) divergenceAnalysis(c *gin.Context) {
	res, err := s.opts.Snapshots.LoadResults()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(res.Divergences) == 0 {
		c.JSON(http.StatusOK, gin.H{"error": "No divergences found"})
		return
	}
	c.JSON(http.StatusOK, divergence.Summarize(res.Divergences))
}

// overlay decodes a partial strategy from the request body onto the saved
// one. changed is false for an empty body or {}.
func (s *Server) overlay(c *gin.Context) (config.Strategy, bool, error) {
	st, err := s.opts.Snapshots.LoadStrategy()
	if err != nil {
		return st, false, err
	}
	raw, err := c.GetRawData()
	if err != nil {
		return st, false, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return st, false, nil
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return st, false, fmt.Errorf("invalid JSON body: %w", err)
	}
	if len(keys) == 0 {
		return st, false, nil
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, false, fmt.Errorf("invalid config: %w", err)
	}
	if err := st.Validate(); err != nil {
		return st, false, err
	}
	return st, true, nil
}

func runStatus(err error) int {
	var dse *marketdata.DataSourceError
	switch {
	case errors.As(err, &dse):
		return http.StatusBadGateway
	case errors.Is(err, indicator.ErrInsufficientData), errors.Is(err, strategy.ErrEmptySeries):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
