package report

import (
	"math"
	"testing"
	"time"

	"forwardtest/internal/model"
)

var t0 = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f", label, got, want)
	}
}

func trade(pct float64) model.Trade {
	return model.Trade{PnLPct: pct}
}

func curve(caps ...float64) []model.EquityPoint {
	out := make([]model.EquityPoint, len(caps))
	for i, c := range caps {
		out[i] = model.EquityPoint{TS: t0.Add(time.Duration(i) * time.Hour), Capital: c}
	}
	return out
}

func TestGenerate_NoTrades(t *testing.T) {
	r := Generate(nil, curve(1000), 1000, 1000)
	if !r.NoTrades || r.Stats != nil {
		t.Fatalf("expected NoTrades report, got %+v", r)
	}
}

func TestGenerate_Mixed(t *testing.T) {
	// Trades: +2, -1, +1.5, 0 (zero counts as a loss)
	// wins 2 (sum 3.5), losses 2 (sum -1)
	// win rate 50, avg win 1.75, avg loss -0.5
	// profit factor |3.5 / -1| = 3.5, expectancy 2.5/4 = 0.625
	trades := []model.Trade{trade(2), trade(-1), trade(1.5), trade(0)}
	eq := curve(1000, 1020, 1010, 1025, 1025)

	r := Generate(trades, eq, 1000, 1025)
	if r.NoTrades || r.Stats == nil {
		t.Fatal("expected stats")
	}
	s := r.Stats
	if s.TotalTrades != 4 || s.Wins != 2 || s.Losses != 2 {
		t.Errorf("counts: %+v", s)
	}
	assertClose(t, "win rate", s.WinRate, 50, 1e-9)
	assertClose(t, "avg win", s.AvgWin, 1.75, 1e-9)
	assertClose(t, "avg loss", s.AvgLoss, -0.5, 1e-9)
	assertClose(t, "profit factor", s.ProfitFactor, 3.5, 1e-9)
	assertClose(t, "expectancy", s.Expectancy, 0.625, 1e-9)
	assertClose(t, "total return", s.TotalReturnPct, 2.5, 1e-9)
	// peak 1020 → 1010: -0.98039%
	assertClose(t, "max drawdown", s.MaxDrawdownPct, (1010.0-1020)/1020*100, 1e-9)
}

func TestGenerate_AllWins(t *testing.T) {
	r := Generate([]model.Trade{trade(1), trade(2)}, curve(100, 101, 103), 100, 103)
	s := r.Stats
	if s.ProfitFactor != 0 {
		t.Errorf("profit factor with no losses must be 0, got %f", s.ProfitFactor)
	}
	assertClose(t, "win rate", s.WinRate, 100, 0)
	assertClose(t, "avg loss", s.AvgLoss, 0, 0)
	assertClose(t, "max drawdown", s.MaxDrawdownPct, 0, 0)
}

func TestGenerate_ZeroSumLosses(t *testing.T) {
	// Break-even trades are losses with zero sum: no division by zero.
	r := Generate([]model.Trade{trade(1), trade(0), trade(0)}, curve(100, 101), 100, 101)
	if r.Stats.ProfitFactor != 0 {
		t.Errorf("profit factor = %f, want 0", r.Stats.ProfitFactor)
	}
	if r.Stats.Losses != 2 {
		t.Errorf("losses = %d, want 2", r.Stats.Losses)
	}
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name string
		caps []float64
		want float64
	}{
		{"empty", nil, 0},
		{"monotonic", []float64{1, 2, 3}, 0},
		// peak 120, trough 90 → -25%; later recovery does not matter
		{"deepest trough", []float64{100, 120, 110, 90, 130, 125}, -25},
		{"drop from start", []float64{200, 150}, -25},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := MaxDrawdown(curve(tc.caps...))
			assertClose(t, tc.name, got, tc.want, 1e-9)
			if got > 0 {
				t.Errorf("drawdown must never be positive, got %f", got)
			}
		})
	}
}

func TestNewStatistics(t *testing.T) {
	r := Generate([]model.Trade{trade(2), trade(-1)}, curve(100, 102, 101), 100, 101)
	st := NewStatistics(r, 3)

	if st.TotalTrades != 2 || st.DivergenceCount != 3 {
		t.Errorf("unexpected %+v", st)
	}
	// 3 divergences over 2 trades
	assertClose(t, "divergence rate", st.DivergenceRate, 150, 1e-9)
	assertClose(t, "total return", st.TotalReturn, 1, 1e-9)

	empty := NewStatistics(Report{NoTrades: true}, 4)
	if empty.TotalTrades != 0 || empty.DivergenceRate != 0 || empty.DivergenceCount != 4 {
		t.Errorf("no-trade statistics: %+v", empty)
	}
}
