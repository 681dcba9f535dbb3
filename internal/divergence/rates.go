package divergence

import "forwardtest/internal/model"

// Impact levels of an indicator's error rate.
const (
	ImpactHigh   = "HIGH"
	ImpactMedium = "MEDIUM"
	ImpactLow    = "LOW"
)

// ErrorRate summarizes how often one indicator's events fell into losing
// trades.
type ErrorRate struct {
	Count          int     `json:"count"`
	ImpactedLosses int     `json:"impacted_losses"`
	ErrorRate      float64 `json:"error_rate"` // impacted losses / count × 100
	ImpactLevel    string  `json:"impact_level"`
}

// ErrorRates groups events by indicator. Events must already be correlated.
func ErrorRates(events []model.DivergenceEvent) map[string]ErrorRate {
	rates := make(map[string]ErrorRate)
	for _, ev := range events {
		r := rates[ev.Indicator]
		r.Count++
		if ev.ImpactedTrade && ev.TradeResult == model.TradeLoss {
			r.ImpactedLosses++
		}
		rates[ev.Indicator] = r
	}
	for name, r := range rates {
		r.ErrorRate = float64(r.ImpactedLosses) / float64(r.Count) * 100
		r.ImpactLevel = impactLevel(r.ErrorRate)
		rates[name] = r
	}
	return rates
}

func impactLevel(rate float64) string {
	switch {
	case rate > 60:
		return ImpactHigh
	case rate > 40:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// Recommendations for the dashboard.
const (
	RecommendTuneMACD = "Adjust MACD sensitivity"
	RecommendStable   = "Strategy stable"
)

// macdNoisyCount is the MACD event count above which MACD is considered too
// sensitive.
const macdNoisyCount = 5

// Analysis is the dashboard summary of a run's divergence events.
type Analysis struct {
	Total           int                  `json:"total_divergences"`
	ByIndicator     map[string]ErrorRate `json:"by_indicator"`
	MostProblematic string               `json:"most_problematic"`
	Recommendation  string               `json:"recommendation"`
}

// Summarize builds the Analysis for correlated events. The most
// problematic indicator is the one with the most events; ties go to the
// indicator seen first.
func Summarize(events []model.DivergenceEvent) Analysis {
	a := Analysis{
		Total:           len(events),
		ByIndicator:     ErrorRates(events),
		MostProblematic: "none",
		Recommendation:  RecommendStable,
	}

	best := 0
	seen := make(map[string]bool, len(a.ByIndicator))
	for _, ev := range events {
		if seen[ev.Indicator] {
			continue
		}
		seen[ev.Indicator] = true
		if n := a.ByIndicator[ev.Indicator].Count; n > best {
			best = n
			a.MostProblematic = ev.Indicator
		}
	}

	if a.ByIndicator[model.IndicatorMACD].Count > macdNoisyCount {
		a.Recommendation = RecommendTuneMACD
	}
	return a
}
