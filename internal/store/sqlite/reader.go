package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"forwardtest/internal/model"
)

// LoadBars returns the stored bars for asset with TS >= since, ascending.
func (s *Store) LoadBars(ctx context.Context, asset string, since time.Time) ([]model.Bar, error) {
	var sinceMS int64
	if !since.IsZero() {
		sinceMS = since.UnixMilli()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE asset = ? AND ts >= ?
		ORDER BY ts ASC
	`, asset, sinceMS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsMS int64
		var vol sql.NullFloat64
		if err := rows.Scan(&tsMS, &b.Open, &b.High, &b.Low, &b.Close, &vol); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.UnixMilli(tsMS).UTC()
		b.Volume = vol.Float64
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

var _ model.RunReader = (*Store)(nil)

// RecentRuns returns the latest runs (newest first) without their trades
// and divergences.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, mode, asset, started_at, finished_at, bars, no_trades, final_cap, return_pct
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var r model.RunRecord
		var started, finished int64
		var noTrades int
		if err := rows.Scan(&r.RunID, &r.Mode, &r.Asset, &started, &finished, &r.Bars, &noTrades, &r.FinalCap, &r.ReturnPct); err != nil {
			return nil, fmt.Errorf("sqlite scan runs: %w", err)
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		r.FinishedAt = time.UnixMilli(finished).UTC()
		r.NoTrades = noTrades != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunTrades returns the trades of one run in exit order.
func (s *Store) RunTrades(ctx context.Context, runID string) ([]model.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT side, entry, exit, entry_time, exit_time, duration_min, reason, pnl_quote, pnl_pct
		FROM trades
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var side, reason string
		var entryMS, exitMS int64
		if err := rows.Scan(&side, &t.EntryPrice, &t.ExitPrice, &entryMS, &exitMS, &t.DurationMin, &reason, &t.PnLQuote, &t.PnLPct); err != nil {
			return nil, fmt.Errorf("sqlite scan trades: %w", err)
		}
		t.Side = model.Side(side)
		t.Reason = model.ExitReason(reason)
		t.EntryTime = time.UnixMilli(entryMS).UTC()
		t.ExitTime = time.UnixMilli(exitMS).UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// DivergenceCount returns the number of divergence events recorded for a run.
func (s *Store) DivergenceCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM divergences WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite count divergences: %w", err)
	}
	return n, nil
}
