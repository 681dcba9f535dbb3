// Package report turns a run's trades and equity curve into performance
// statistics.
package report

import "forwardtest/internal/model"

// Stats are the performance figures of a run with at least one trade.
// Percentages are in percent, not fractions.
type Stats struct {
	TotalTrades    int     `json:"total_trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"win_rate"`
	AvgWin         float64 `json:"avg_win"`
	AvgLoss        float64 `json:"avg_loss"`
	ProfitFactor   float64 `json:"profit_factor"`
	Expectancy     float64 `json:"expectancy"`
	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
}

// Report is either a run without trades or a run with Stats.
type Report struct {
	NoTrades bool   `json:"no_trades"`
	Stats    *Stats `json:"stats,omitempty"`
}

// Generate computes the report. An empty trade list yields
// Report{NoTrades: true}; it is not an error.
func Generate(trades []model.Trade, equity []model.EquityPoint, initial, final float64) Report {
	if len(trades) == 0 {
		return Report{NoTrades: true}
	}

	var (
		wins, losses    int
		sumWin, sumLoss float64
		sumAll          float64
	)
	for i := range trades {
		pct := trades[i].PnLPct
		sumAll += pct
		if trades[i].Win() {
			wins++
			sumWin += pct
		} else {
			losses++
			sumLoss += pct
		}
	}

	n := float64(len(trades))
	s := &Stats{
		TotalTrades:    len(trades),
		Wins:           wins,
		Losses:         losses,
		WinRate:        float64(wins) / n * 100,
		AvgWin:         mean(sumWin, wins),
		AvgLoss:        mean(sumLoss, losses),
		Expectancy:     sumAll / n,
		MaxDrawdownPct: MaxDrawdown(equity),
		InitialCapital: initial,
		FinalCapital:   final,
	}
	if losses > 0 && sumLoss != 0 {
		pf := sumWin / sumLoss
		if pf < 0 {
			pf = -pf
		}
		s.ProfitFactor = pf
	}
	if initial != 0 {
		s.TotalReturnPct = (final - initial) / initial * 100
	}
	return Report{Stats: s}
}

// MaxDrawdown returns the deepest (equity - running peak) / running peak
// × 100 over the curve. It is never positive.
func MaxDrawdown(equity []model.EquityPoint) float64 {
	peak, worst := 0.0, 0.0
	for i, p := range equity {
		if i == 0 || p.Capital > peak {
			peak = p.Capital
		}
		if peak <= 0 {
			continue
		}
		if dd := (p.Capital - peak) / peak * 100; dd < worst {
			worst = dd
		}
	}
	return worst
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
