package report

// Statistics is the summary block shown on the dashboard and stored with
// the results snapshot.
type Statistics struct {
	TotalTrades     int     `json:"total_trades"`
	WinRate         float64 `json:"win_rate"`
	ProfitFactor    float64 `json:"profit_factor"`
	Expectancy      float64 `json:"expectancy"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	TotalReturn     float64 `json:"total_return"`
	DivergenceCount int     `json:"divergence_count"`
	DivergenceRate  float64 `json:"divergence_rate"` // divergences per 100 trades
}

// NewStatistics flattens a report and the divergence count into the
// dashboard block. A report without trades has zero figures.
func NewStatistics(r Report, divergences int) Statistics {
	st := Statistics{DivergenceCount: divergences}
	if r.NoTrades || r.Stats == nil {
		return st
	}
	s := r.Stats
	st.TotalTrades = s.TotalTrades
	st.WinRate = s.WinRate
	st.ProfitFactor = s.ProfitFactor
	st.Expectancy = s.Expectancy
	st.MaxDrawdown = s.MaxDrawdownPct
	st.TotalReturn = s.TotalReturnPct
	if s.TotalTrades > 0 {
		st.DivergenceRate = float64(divergences) / float64(s.TotalTrades) * 100
	}
	return st
}
