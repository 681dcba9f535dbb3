// Package strategy runs the MACD/EMA/Bollinger strategy over an enriched
// bar series.
//
// Evaluate is the pure per-bar transition function of the FLAT/LONG/SHORT
// state machine. Simulator drives it over a series, books closed trades in
// a portfolio.Ledger and reports entries and exits to a Listener.
package strategy

import (
	"fmt"

	"forwardtest/config"
	"forwardtest/internal/markethours"
	"forwardtest/internal/model"
)

// State is the position state of the machine.
type State string

const (
	StateFlat  State = "FLAT"
	StateLong  State = "LONG"
	StateShort State = "SHORT"
)

// StateOf returns the state implied by an open position (nil = FLAT).
func StateOf(pos *model.Position) State {
	switch {
	case pos == nil:
		return StateFlat
	case pos.Side == model.SideShort:
		return StateShort
	default:
		return StateLong
	}
}

// Action is what the machine does on a bar.
type Action string

const (
	ActionSkip  Action = "SKIP"  // bar rejected by a filter
	ActionHold  Action = "HOLD"  // bar passed the filters, nothing to do
	ActionEnter Action = "ENTER" // open a position
	ActionExit  Action = "EXIT"  // close the open position
)

// SkipReason names the filter that rejected a bar.
type SkipReason string

const (
	SkipHours      SkipReason = "outside_hours"
	SkipVolume     SkipReason = "low_volume"
	SkipVolatility SkipReason = "bands_not_expanding"
)

// Rules are the strategy parameters Evaluate needs.
type Rules struct {
	Fee           float64 // fractional, per side
	StopLossPct   float64
	TakeProfitPct float64
	VolumeMin     float64 // quote currency
	Hours         markethours.Windows
}

// NewRules builds Rules from a validated strategy config.
func NewRules(cfg config.Strategy) (Rules, error) {
	hours, err := cfg.Windows()
	if err != nil {
		return Rules{}, fmt.Errorf("strategy: rules: %w", err)
	}
	return Rules{
		Fee:           cfg.Fees,
		StopLossPct:   cfg.StopLossPct,
		TakeProfitPct: cfg.TakeProfitPct,
		VolumeMin:     cfg.VolumeMin,
		Hours:         hours,
	}, nil
}

// Decision is the outcome of evaluating one bar.
type Decision struct {
	Action Action
	Skip   SkipReason       // set for ActionSkip
	Side   model.Side       // side entered, or side of the position exited
	Price  float64          // fee-adjusted fill price for ENTER/EXIT
	Reason model.ExitReason // set for ActionExit
}

// Next returns the state after applying d in state s.
func (d Decision) Next(s State) State {
	switch d.Action {
	case ActionEnter:
		if d.Side == model.SideShort {
			return StateShort
		}
		return StateLong
	case ActionExit:
		return StateFlat
	default:
		return s
	}
}

// Evaluate applies the filters and the entry or exit rule to one bar.
// pos is the open position or nil when flat. Evaluate has no side effects.
func Evaluate(r Rules, pos *model.Position, bar model.EnrichedBar) Decision {
	if !r.Hours.Contains(bar.TS) {
		return Decision{Action: ActionSkip, Skip: SkipHours}
	}
	if bar.VolumeQuote < r.VolumeMin {
		return Decision{Action: ActionSkip, Skip: SkipVolume}
	}
	if !bar.BBExpanding {
		return Decision{Action: ActionSkip, Skip: SkipVolatility}
	}

	if pos == nil {
		return evaluateEntry(r, bar)
	}
	return evaluateExit(r, pos, bar.Close)
}

func evaluateEntry(r Rules, bar model.EnrichedBar) Decision {
	c := bar.Close
	switch {
	case bar.MACDBullish && c > bar.EMA6 && bar.EMA7 > bar.EMA21:
		return Decision{Action: ActionEnter, Side: model.SideLong, Price: c * (1 + r.Fee)}
	case bar.MACDBearish && c < bar.EMA6 && bar.EMA7 < bar.EMA21:
		return Decision{Action: ActionEnter, Side: model.SideShort, Price: c * (1 - r.Fee)}
	}
	return Decision{Action: ActionHold}
}

func evaluateExit(r Rules, pos *model.Position, price float64) Decision {
	stop, target := Triggers(r, pos)
	d := Decision{Action: ActionExit, Side: pos.Side}

	if pos.Side == model.SideShort {
		switch {
		case price >= stop:
			d.Reason = model.ExitStopLoss
		case price <= target:
			d.Reason = model.ExitTakeProfit
		default:
			return Decision{Action: ActionHold}
		}
		d.Price = price * (1 + r.Fee)
		return d
	}

	switch {
	case price <= stop:
		d.Reason = model.ExitStopLoss
	case price >= target:
		d.Reason = model.ExitTakeProfit
	default:
		return Decision{Action: ActionHold}
	}
	d.Price = price * (1 - r.Fee)
	return d
}

// Triggers returns the stop-loss and take-profit prices for pos, measured
// from its fee-adjusted entry.
func Triggers(r Rules, pos *model.Position) (stop, target float64) {
	e := pos.EntryPrice
	if pos.Side == model.SideShort {
		return e * (1 + r.StopLossPct/100), e * (1 - r.TakeProfitPct/100)
	}
	return e * (1 - r.StopLossPct/100), e * (1 + r.TakeProfitPct/100)
}
