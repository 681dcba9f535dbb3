package divergence

import (
	"math"
	"testing"
	"time"

	"forwardtest/internal/model"
)

var t0 = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func ts(i int) time.Time { return t0.Add(time.Duration(i) * 15 * time.Minute) }

// flatBars returns n bars with no extremes, RSI 50, MACD 0 and no trend.
func flatBars(n int) []model.EnrichedBar {
	bars := make([]model.EnrichedBar, n)
	for i := range bars {
		bars[i] = model.EnrichedBar{
			Bar:         model.Bar{TS: ts(i), Open: 99.5, High: 100, Low: 99, Close: 99.5, Volume: 10},
			RSI:         50,
			VolumeQuote: 1000,
		}
	}
	return bars
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_BearishDivergence(t *testing.T) {
	// Highs: 100 101 103 102 101 | 105 | 100 ×5
	// Bar 5 is a strict local high; the prior high is bar 2 (103, RSI 70).
	// RSI at bar 5 is 45 < 70-5 → bearish, and below 50 → HIGH.
	bars := flatBars(11)
	for i, h := range []float64{100, 101, 103, 102, 101, 105} {
		bars[i].High = h
	}
	bars[2].RSI = 70
	bars[5].RSI = 45

	events := RSI(bars, DefaultParams())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(events), events)
	}
	ev := events[0]
	if ev.Type != model.DivergenceBearish || ev.Indicator != model.IndicatorRSI || ev.Severity != model.SeverityHigh {
		t.Errorf("unexpected event %+v", ev)
	}
	if !ev.TS.Equal(ts(5)) || ev.Price != bars[5].Close {
		t.Errorf("event at %s price %f, want bar 5", ev.TS, ev.Price)
	}

	bars[5].RSI = 60 // still 10 below, but above the midline
	events = RSI(bars, DefaultParams())
	if len(events) != 1 || events[0].Severity != model.SeverityMedium {
		t.Errorf("expected one MEDIUM event, got %+v", events)
	}

	bars[5].RSI = 66 // only 4 points lower
	if events := RSI(bars, DefaultParams()); len(events) != 0 {
		t.Errorf("4-point gap must not count, got %+v", events)
	}
}

func TestRSI_BullishDivergence(t *testing.T) {
	// Lows: 99 98 97 98 99 | 95 | 99 ×5
	// Prior low is bar 2 (97, RSI 30); RSI at bar 5 is 40 > 35 → bullish MEDIUM.
	bars := flatBars(11)
	for i, l := range []float64{99, 98, 97, 98, 99, 95} {
		bars[i].Low = l
	}
	bars[2].RSI = 30
	bars[5].RSI = 40

	events := RSI(bars, DefaultParams())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != model.DivergenceBullish || events[0].Severity != model.SeverityMedium {
		t.Errorf("unexpected event %+v", events[0])
	}

	bars[5].RSI = 55
	if events := RSI(bars, DefaultParams()); len(events) != 1 || events[0].Severity != model.SeverityHigh {
		t.Errorf("RSI above 50 on a bullish divergence should be HIGH, got %+v", events)
	}
}

func TestRSI_NeedsStrictPeak(t *testing.T) {
	bars := flatBars(11)
	bars[2].High = 105
	bars[5].High = 105 // ties the prior high: not a strict local high
	bars[2].RSI = 80
	bars[5].RSI = 20
	if events := RSI(bars, DefaultParams()); len(events) != 0 {
		t.Errorf("tied highs must not produce events, got %+v", events)
	}
}

func TestRSI_EdgesAreNotScanned(t *testing.T) {
	// A spike within Window bars of either end is never a candidate.
	bars := flatBars(11)
	bars[9].High = 110
	bars[9].RSI = 10
	bars[3].RSI = 90
	if events := RSI(bars, DefaultParams()); len(events) != 0 {
		t.Errorf("edge bar produced events: %+v", events)
	}
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_PriceFailsToConfirm(t *testing.T) {
	// MACD: 1 2 3 2 1 | 4 | 0 ×5 → local MACD high at bar 5.
	// Prior price high 102 at bar 1; 102 × 0.995 = 101.49.
	bars := flatBars(11)
	for i, m := range []float64{1, 2, 3, 2, 1, 4} {
		bars[i].MACD = m
	}
	bars[1].High = 102
	bars[5].High = 101

	events := MACD(bars, DefaultParams())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != model.DivergenceBearish || ev.Severity != model.SeverityHigh || ev.Indicator != model.IndicatorMACD {
		t.Errorf("unexpected event %+v", ev)
	}

	bars[5].High = 101.6 // within 0.5% of the prior high
	if events := MACD(bars, DefaultParams()); len(events) != 0 {
		t.Errorf("price within the gap must not count, got %+v", events)
	}
}

// ────────────────────────────────────────────────────────────
// Volume
// ────────────────────────────────────────────────────────────

func TestVolume_FadeInUptrend(t *testing.T) {
	bars := flatBars(15)
	for i := range bars {
		bars[i].EMA7 = 2
		bars[i].EMA21 = 1
	}
	bars[12].VolumeQuote = 600 // mean 1000, threshold 700
	bars[14].VolumeQuote = 700 // above 0.7 × 960

	events := Volume(bars, DefaultParams())
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(events), events)
	}
	ev := events[0]
	if !ev.TS.Equal(ts(12)) || ev.Type != model.DivergenceWarning || ev.Severity != model.SeverityMedium {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestVolume_IgnoredOutsideUptrend(t *testing.T) {
	bars := flatBars(15)
	bars[12].VolumeQuote = 1
	if events := Volume(bars, DefaultParams()); len(events) != 0 {
		t.Errorf("no uptrend, expected no events, got %+v", events)
	}
}

func TestVolume_ThresholdIsStrict(t *testing.T) {
	bars := flatBars(11)
	for i := range bars {
		bars[i].EMA7 = 2
		bars[i].EMA21 = 1
	}
	bars[10].VolumeQuote = 700
	if events := Volume(bars, DefaultParams()); len(events) != 0 {
		t.Errorf("exactly 70%% of the mean must not count, got %+v", events)
	}
}

// ────────────────────────────────────────────────────────────
// Merge, sort, correlate
// ────────────────────────────────────────────────────────────

func TestDetect_FlatSeries(t *testing.T) {
	bars := flatBars(100)
	if events := Detect(bars, DefaultParams()); len(events) != 0 {
		t.Errorf("flat series produced %d events", len(events))
	}
}

func TestDetect_SortedByTime(t *testing.T) {
	bars := flatBars(200)
	for i := range bars {
		x := float64(i)
		bars[i].High = 100 + 3*math.Sin(x/3) + math.Sin(x*1.7)
		bars[i].Low = bars[i].High - 2 - math.Cos(x)
		bars[i].RSI = 50 + 30*math.Sin(x/5)
		bars[i].MACD = math.Sin(x / 4)
		bars[i].EMA7 = 1 + math.Sin(x/10)
		bars[i].EMA21 = 1
		bars[i].VolumeQuote = 1000 + 900*math.Sin(x*2.3)
	}

	events := Detect(bars, DefaultParams())
	if len(events) == 0 {
		t.Fatal("expected some events on a noisy series")
	}
	for i := 1; i < len(events); i++ {
		if events[i].TS.Before(events[i-1].TS) {
			t.Fatalf("event %d at %s is before event %d at %s", i, events[i].TS, i-1, events[i-1].TS)
		}
	}
}

func TestCorrelate_FirstContainingTradeWins(t *testing.T) {
	trades := []model.Trade{
		{Side: model.SideLong, EntryTime: ts(10), ExitTime: ts(20), PnLPct: -0.8},
		{Side: model.SideShort, EntryTime: ts(30), ExitTime: ts(40), PnLPct: 1.5},
	}
	events := []model.DivergenceEvent{
		{TS: ts(15), Indicator: model.IndicatorRSI},
		{TS: ts(25), Indicator: model.IndicatorMACD},
		{TS: ts(30), Indicator: model.IndicatorVolume}, // entry bound is inclusive
	}

	out := Correlate(events, trades)

	if !out[0].ImpactedTrade || out[0].TradeSide != model.SideLong || out[0].TradeResult != model.TradeLoss {
		t.Errorf("event 0: %+v, want impacted LONG LOSS", out[0])
	}
	if out[1].ImpactedTrade || out[1].TradeSide != "" {
		t.Errorf("event 1 lies between trades: %+v", out[1])
	}
	if !out[2].ImpactedTrade || out[2].TradeSide != model.SideShort || out[2].TradeResult != model.TradeWin {
		t.Errorf("event 2: %+v, want impacted SHORT WIN", out[2])
	}
	if events[0].ImpactedTrade {
		t.Error("Correlate must not modify its input")
	}
}

func TestCorrelate_NoTrades(t *testing.T) {
	events := []model.DivergenceEvent{{TS: ts(1)}}
	out := Correlate(events, nil)
	if len(out) != 1 || out[0].ImpactedTrade {
		t.Errorf("unexpected %+v", out)
	}
}
