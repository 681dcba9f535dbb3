package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These decouple the pipeline from the concrete stores (SQLite, Redis).

// BarWriter persists fetched bars for an asset.
type BarWriter interface {
	// SaveBars upserts bars keyed by (asset, timestamp).
	SaveBars(ctx context.Context, asset string, bars []Bar) error
}

// BarReader loads previously persisted bars for an asset.
type BarReader interface {
	// LoadBars returns bars with TS >= since, ascending.
	LoadBars(ctx context.Context, asset string, since time.Time) ([]Bar, error)
}

// RunRecord is everything a completed run leaves behind in the journal.
type RunRecord struct {
	RunID       string            `json:"run_id"`
	Mode        string            `json:"mode"`
	Asset       string            `json:"asset"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Bars        int               `json:"bars"`
	NoTrades    bool              `json:"no_trades"`
	FinalCap    float64           `json:"final_capital"`
	ReturnPct   float64           `json:"total_return_pct"`
	Trades      []Trade           `json:"trades"`
	Divergences []DivergenceEvent `json:"divergences"`
}

// RunRecorder writes completed runs to a journal.
type RunRecorder interface {
	RecordRun(ctx context.Context, rec RunRecord) error
}

// RunReader queries the run journal.
type RunReader interface {
	// RecentRuns returns runs newest first, without trades or divergences.
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	RunTrades(ctx context.Context, runID string) ([]Trade, error)
	DivergenceCount(ctx context.Context, runID string) (int, error)
}
