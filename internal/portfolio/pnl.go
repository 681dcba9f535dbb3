package portfolio

import "forwardtest/internal/model"

// RealizedPnL returns the quote-currency PnL and percent PnL of a round trip.
// Prices are already fee-adjusted.
func RealizedPnL(side model.Side, entry, exit, size float64) (pnl, pct float64) {
	switch side {
	case model.SideShort:
		pnl = (entry - exit) * size
	default:
		pnl = (exit - entry) * size
	}
	if notional := entry * size; notional != 0 {
		pct = pnl / notional * 100
	}
	return pnl, pct
}

// PnLSummary is a point-in-time view of the ledger.
type PnLSummary struct {
	InitialCapital float64 `json:"initial_capital"`
	Capital        float64 `json:"capital"`
	RealizedPnL    float64 `json:"realized_pnl"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	TotalPnL       float64 `json:"total_pnl"`
	TotalTrades    int     `json:"total_trades"`
	MaxLossStreak  int     `json:"max_loss_streak"`
	OpenPosition   bool    `json:"open_position"`
}

// Summary returns the current P&L summary. pos may be nil; lastClose marks
// an open position to market.
func (l *Ledger) Summary(pos *model.Position, lastClose float64) PnLSummary {
	unrealized := 0.0
	if pos != nil {
		unrealized = pos.UnrealizedPnL(lastClose, l.size)
	}
	realized := l.capital - l.initial
	return PnLSummary{
		InitialCapital: l.initial,
		Capital:        l.capital,
		RealizedPnL:    realized,
		UnrealizedPnL:  unrealized,
		TotalPnL:       realized + unrealized,
		TotalTrades:    len(l.trades),
		MaxLossStreak:  l.maxLossStreak,
		OpenPosition:   pos != nil,
	}
}
