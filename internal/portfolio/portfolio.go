// Package portfolio keeps the capital ledger of one simulation run.
//
// A Ledger owns the running capital, the closed trades and the equity curve.
// It is created per run and owned by the goroutine running the simulation;
// Trades and Equity hand out copies.
package portfolio

import (
	"time"

	"forwardtest/internal/model"
)

// Ledger tracks capital, closed trades and the equity curve for one run.
type Ledger struct {
	size    float64 // position size in base units
	initial float64
	capital float64

	trades []model.Trade
	equity []model.EquityPoint

	lossStreak    int
	maxLossStreak int
}

// NewLedger starts a ledger with capital = size × firstClose and records
// the opening equity point at ts.
func NewLedger(size, firstClose float64, ts time.Time) *Ledger {
	capital := size * firstClose
	return &Ledger{
		size:    size,
		initial: capital,
		capital: capital,
		trades:  make([]model.Trade, 0, 64),
		equity:  []model.EquityPoint{{TS: ts, Capital: capital}},
	}
}

// Size returns the position size used for PnL.
func (l *Ledger) Size() float64 { return l.size }

// Close books a closed trade: capital grows by its PnL and one equity point
// is appended at the exit time. Returns the capital after booking.
func (l *Ledger) Close(t model.Trade) float64 {
	l.capital += t.PnLQuote
	l.trades = append(l.trades, t)
	l.equity = append(l.equity, model.EquityPoint{TS: t.ExitTime, Capital: l.capital})

	if t.Win() {
		l.lossStreak = 0
	} else {
		l.lossStreak++
		if l.lossStreak > l.maxLossStreak {
			l.maxLossStreak = l.lossStreak
		}
	}
	return l.capital
}

// Capital returns the current capital.
func (l *Ledger) Capital() float64 {
	return l.capital
}

// Initial returns the starting capital.
func (l *Ledger) Initial() float64 { return l.initial }

// LossStreak returns the number of consecutive losing trades ending at the
// latest close.
func (l *Ledger) LossStreak() int {
	return l.lossStreak
}

// Trades returns a snapshot of all closed trades in exit order.
func (l *Ledger) Trades() []model.Trade {
	cp := make([]model.Trade, len(l.trades))
	copy(cp, l.trades)
	return cp
}

// Equity returns a snapshot of the equity curve.
func (l *Ledger) Equity() []model.EquityPoint {
	cp := make([]model.EquityPoint, len(l.equity))
	copy(cp, l.equity)
	return cp
}
