package model

import "time"

// Position is the single open position held by a simulation run.
type Position struct {
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"` // fee-adjusted
	EntryTime  time.Time `json:"entry_time"`
}

// UnrealizedPnL returns the open profit/loss in quote currency at price for
// the given position size.
func (p *Position) UnrealizedPnL(price, size float64) float64 {
	if p.Side == SideShort {
		return (p.EntryPrice - price) * size
	}
	return (price - p.EntryPrice) * size
}
