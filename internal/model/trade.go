package model

import "time"

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTakeProfit   ExitReason = "TAKE_PROFIT"
	ExitTrailingStop ExitReason = "TRAILING_STOP" // declared for reporting; the simulator never emits it
)

// Trade is a closed position. Trades are immutable once recorded.
type Trade struct {
	Side        Side       `json:"side"`
	EntryPrice  float64    `json:"entry"` // fee-adjusted
	ExitPrice   float64    `json:"exit"`  // fee-adjusted
	EntryTime   time.Time  `json:"entry_time"`
	ExitTime    time.Time  `json:"exit_time"`
	DurationMin float64    `json:"duration_min"`
	Reason      ExitReason `json:"reason"`
	PnLQuote    float64    `json:"pnl_usdt"`
	PnLPct      float64    `json:"pnl_pct"`
}

// Win reports whether the trade closed with a positive return.
func (t *Trade) Win() bool { return t.PnLPct > 0 }

// Contains reports whether ts falls inside the trade's [entry, exit] window.
func (t *Trade) Contains(ts time.Time) bool {
	return !ts.Before(t.EntryTime) && !ts.After(t.ExitTime)
}

// EquityPoint is the account capital right after a trade closes
// (or at the start of the run).
type EquityPoint struct {
	TS      time.Time `json:"timestamp"`
	Capital float64   `json:"capital"`
}
