// Package divergence flags bars where price action disagrees with RSI,
// MACD or volume, and ties those events to the trades they fell into.
//
// Detection looks at bars on both sides of a candidate extreme, so an
// event at bar i needs bars up to i+Window. It is a post-run analysis and
// never feeds the simulator.
package divergence

import (
	"sort"

	"forwardtest/internal/model"
)

// Params are the detector thresholds.
type Params struct {
	Window       int     // bars on each side of a local extreme
	RSIThreshold float64 // RSI points
	MACDPriceGap float64 // fraction below the prior high
	VolumeWindow int     // trailing bars for the mean volume
	VolumeRatio  float64 // fade when current < ratio × mean
}

// DefaultParams returns the thresholds the strategy was tuned with.
func DefaultParams() Params {
	return Params{
		Window:       5,
		RSIThreshold: 5,
		MACDPriceGap: 0.005,
		VolumeWindow: 10,
		VolumeRatio:  0.7,
	}
}

// Detect runs every scan over bars and returns the events sorted by time.
func Detect(bars []model.EnrichedBar, p Params) []model.DivergenceEvent {
	var events []model.DivergenceEvent
	events = append(events, RSI(bars, p)...)
	events = append(events, MACD(bars, p)...)
	events = append(events, Volume(bars, p)...)

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].TS.Before(events[j].TS)
	})
	return events
}

// Analyze is Detect followed by Correlate.
func Analyze(bars []model.EnrichedBar, trades []model.Trade, p Params) []model.DivergenceEvent {
	return Correlate(Detect(bars, p), trades)
}

// RSI finds price highs confirmed by a weaker RSI (bearish) and price lows
// confirmed by a stronger RSI (bullish).
func RSI(bars []model.EnrichedBar, p Params) []model.DivergenceEvent {
	w := p.Window
	high := func(b model.EnrichedBar) float64 { return b.High }
	low := func(b model.EnrichedBar) float64 { return -b.Low }

	var out []model.DivergenceEvent
	for i := w; i < len(bars)-w; i++ {
		cur := bars[i]

		if isPeak(bars, i, w, high) {
			prev := bars[argMax(bars, i-w, i, high)]
			if cur.High > prev.High && cur.RSI < prev.RSI-p.RSIThreshold {
				sev := model.SeverityMedium
				if cur.RSI < 50 {
					sev = model.SeverityHigh
				}
				out = append(out, model.DivergenceEvent{
					TS:              cur.TS,
					Type:            model.DivergenceBearish,
					Indicator:       model.IndicatorRSI,
					PriceAction:     "Higher high",
					IndicatorAction: "Lower high",
					Severity:        sev,
					Price:           cur.Close,
				})
			}
		}

		if isPeak(bars, i, w, low) {
			prev := bars[argMax(bars, i-w, i, low)]
			if cur.Low < prev.Low && cur.RSI > prev.RSI+p.RSIThreshold {
				sev := model.SeverityMedium
				if cur.RSI > 50 {
					sev = model.SeverityHigh
				}
				out = append(out, model.DivergenceEvent{
					TS:              cur.TS,
					Type:            model.DivergenceBullish,
					Indicator:       model.IndicatorRSI,
					PriceAction:     "Lower low",
					IndicatorAction: "Higher low",
					Severity:        sev,
					Price:           cur.Close,
				})
			}
		}
	}
	return out
}

// MACD finds MACD highs where price stays at least MACDPriceGap below the
// prior price high.
func MACD(bars []model.EnrichedBar, p Params) []model.DivergenceEvent {
	w := p.Window
	macd := func(b model.EnrichedBar) float64 { return b.MACD }
	high := func(b model.EnrichedBar) float64 { return b.High }

	var out []model.DivergenceEvent
	for i := w; i < len(bars)-w; i++ {
		if !isPeak(bars, i, w, macd) {
			continue
		}
		cur := bars[i]
		prev := bars[argMax(bars, i-w, i, high)]
		if cur.High < prev.High-prev.High*p.MACDPriceGap {
			out = append(out, model.DivergenceEvent{
				TS:              cur.TS,
				Type:            model.DivergenceBearish,
				Indicator:       model.IndicatorMACD,
				PriceAction:     "Price fails to confirm MACD high",
				IndicatorAction: "MACD higher high",
				Severity:        model.SeverityHigh,
				Price:           cur.Close,
			})
		}
	}
	return out
}

// Volume flags uptrend bars whose quote volume fades below VolumeRatio of
// the trailing mean.
func Volume(bars []model.EnrichedBar, p Params) []model.DivergenceEvent {
	w := p.VolumeWindow

	var out []model.DivergenceEvent
	for i := w; i < len(bars); i++ {
		cur := bars[i]
		if cur.EMA7 <= cur.EMA21 {
			continue
		}
		sum := 0.0
		for _, b := range bars[i-w : i] {
			sum += b.VolumeQuote
		}
		if cur.VolumeQuote < sum/float64(w)*p.VolumeRatio {
			out = append(out, model.DivergenceEvent{
				TS:              cur.TS,
				Type:            model.DivergenceWarning,
				Indicator:       model.IndicatorVolume,
				PriceAction:     "Uptrend on falling volume",
				IndicatorAction: "Volume 30% below average",
				Severity:        model.SeverityMedium,
				Price:           cur.Close,
			})
		}
	}
	return out
}

// Correlate marks each event with the first trade whose [entry, exit]
// window contains it. The input slice is not modified.
func Correlate(events []model.DivergenceEvent, trades []model.Trade) []model.DivergenceEvent {
	out := make([]model.DivergenceEvent, len(events))
	copy(out, events)
	if len(trades) == 0 {
		return out
	}
	for i := range out {
		for j := range trades {
			t := &trades[j]
			if !t.Contains(out[i].TS) {
				continue
			}
			out[i].ImpactedTrade = true
			out[i].TradeSide = t.Side
			out[i].TradeResult = model.TradeLoss
			if t.Win() {
				out[i].TradeResult = model.TradeWin
			}
			break
		}
	}
	return out
}

// isPeak reports whether v(bars[i]) is strictly greater than every value in
// the w bars before and after it.
func isPeak(bars []model.EnrichedBar, i, w int, v func(model.EnrichedBar) float64) bool {
	x := v(bars[i])
	for j := i - w; j <= i+w; j++ {
		if j != i && v(bars[j]) >= x {
			return false
		}
	}
	return true
}

// argMax returns the first index in [from, to) with the largest value.
func argMax(bars []model.EnrichedBar, from, to int, v func(model.EnrichedBar) float64) int {
	best := from
	for j := from + 1; j < to; j++ {
		if v(bars[j]) > v(bars[best]) {
			best = j
		}
	}
	return best
}
