package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"forwardtest/internal/model"
)

const maxRunsLimit = 200

func (s *Server) listRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}
	runs, err := s.opts.History.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) getRun(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	trades, err := s.opts.History.RunTrades(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	n, err := s.opts.History.DivergenceCount(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":           id,
		"trades":           trades,
		"divergence_count": n,
	})
}
