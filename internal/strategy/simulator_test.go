package strategy

import (
	"errors"
	"testing"
	"time"

	"forwardtest/internal/logger"
	"forwardtest/internal/model"
)

type event struct {
	kind    string // entry | exit
	side    model.Side
	capital float64
}

type recorder struct{ events []event }

func (r *recorder) OnEntry(pos model.Position, _ model.EnrichedBar, capital float64) {
	r.events = append(r.events, event{"entry", pos.Side, capital})
}

func (r *recorder) OnExit(t model.Trade, capital float64) {
	r.events = append(r.events, event{"exit", t.Side, capital})
}

func quietSeries(n int, close float64) []model.EnrichedBar {
	bars := make([]model.EnrichedBar, n)
	for i := range bars {
		bars[i] = quietBar(t0.Add(time.Duration(i)*time.Minute), close)
	}
	return bars
}

func newTestSim(l Listener) *Simulator {
	return New(Options{
		Rules:        testRules(),
		PositionSize: 40,
		Logger:       logger.Discard(),
	}, l)
}

func TestRun_EmptySeries(t *testing.T) {
	sim := newTestSim(nil)
	for _, n := range []int{0, 1, 30} {
		_, err := sim.Run(quietSeries(n, 100))
		if !errors.Is(err, ErrEmptySeries) {
			t.Errorf("%d bars: expected ErrEmptySeries, got %v", n, err)
		}
	}
}

func TestRun_NoTradesIsSuccess(t *testing.T) {
	res, err := newTestSim(nil).Run(quietSeries(31, 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 0 || res.OpenPosition != nil {
		t.Fatalf("expected no trades, got %+v", res)
	}
	// 40 × 100
	assertClose(t, "initial", res.InitialCapital, 4000, 0)
	assertClose(t, "final", res.FinalCapital, 4000, 0)
	if len(res.Equity) != 1 {
		t.Errorf("equity points = %d, want 1", len(res.Equity))
	}
}

func TestRun_WarmupBarsNeverTrade(t *testing.T) {
	bars := quietSeries(40, 100)
	bars[29] = bullishBar(bars[29].TS, 100)

	res, err := newTestSim(nil).Run(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OpenPosition != nil || len(res.Trades) != 0 {
		t.Error("a signal inside the warm-up margin must be ignored")
	}
}

func TestRun_LongEntryThenStopLoss(t *testing.T) {
	// Entry on bar 35 at 101 × 1.0015; bar 40 sits exactly on the stop;
	// bar 45 would have hit the target.
	const fee = 0.0015
	bars := quietSeries(60, 101)
	bars[35] = bullishBar(bars[35].TS, 101)

	entry := 101 * (1 + fee)
	stop := entry * (1 - 0.8/100)
	target := entry * (1 + 1.5/100)
	for i := 36; i < 60; i++ {
		bars[i] = quietBar(bars[i].TS, entry) // between the triggers
	}
	bars[40] = quietBar(bars[40].TS, stop)
	bars[45] = quietBar(bars[45].TS, target+1)

	rec := &recorder{}
	res, err := newTestSim(rec).Run(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected exactly one trade, got %d", len(res.Trades))
	}

	tr := res.Trades[0]
	if tr.Side != model.SideLong || tr.Reason != model.ExitStopLoss {
		t.Errorf("trade = %s/%s, want LONG/STOP_LOSS", tr.Side, tr.Reason)
	}
	if !tr.EntryTime.Equal(bars[35].TS) || !tr.ExitTime.Equal(bars[40].TS) {
		t.Errorf("trade window %s..%s, want bar 35..40", tr.EntryTime, tr.ExitTime)
	}
	assertClose(t, "entry", tr.EntryPrice, entry, 1e-9)
	assertClose(t, "exit", tr.ExitPrice, stop*(1-fee), 1e-9)
	assertClose(t, "duration", tr.DurationMin, 5, 1e-9)

	wantPnL := (stop*(1-fee) - entry) * 40
	assertClose(t, "pnl", tr.PnLQuote, wantPnL, 1e-9)
	assertClose(t, "pnl pct", tr.PnLPct, wantPnL/(entry*40)*100, 1e-9)
	assertClose(t, "capital", res.FinalCapital, 40*101+wantPnL, 1e-9)

	if len(res.Equity) != 2 || !res.Equity[1].TS.Equal(tr.ExitTime) {
		t.Errorf("equity curve %+v: want start point plus one at the exit", res.Equity)
	}
	if len(rec.events) != 2 || rec.events[0].kind != "entry" || rec.events[1].kind != "exit" {
		t.Errorf("listener events %+v, want entry then exit", rec.events)
	}
}

func TestRun_ShortTakeProfit(t *testing.T) {
	const fee = 0.0015
	bars := quietSeries(50, 100)
	bars[31] = bearishBar(bars[31].TS, 100)
	entry := 100 * (1 - fee)
	target := entry * (1 - 1.5/100)
	for i := 32; i < 50; i++ {
		bars[i] = quietBar(bars[i].TS, entry)
	}
	bars[33] = quietBar(bars[33].TS, target-0.1)

	res, err := newTestSim(nil).Run(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected one trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.Side != model.SideShort || tr.Reason != model.ExitTakeProfit {
		t.Errorf("trade = %s/%s, want SHORT/TAKE_PROFIT", tr.Side, tr.Reason)
	}
	exit := (target - 0.1) * (1 + fee)
	assertClose(t, "exit", tr.ExitPrice, exit, 1e-9)
	assertClose(t, "pnl", tr.PnLQuote, (entry-exit)*40, 1e-9)
	if tr.PnLPct <= 0 {
		t.Errorf("take profit should be a win, pnl%% = %f", tr.PnLPct)
	}
}

func TestRun_EntryBarDoesNotExit(t *testing.T) {
	// Exits are checked from the bar after the entry on.
	bars := quietSeries(40, 100)
	bars[32] = bullishBar(bars[32].TS, 100)

	res, err := newTestSim(nil).Run(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OpenPosition == nil {
		t.Fatal("expected an open position")
	}
	for _, tr := range res.Trades {
		if !tr.ExitTime.After(tr.EntryTime) {
			t.Errorf("trade exits at or before its entry: %+v", tr)
		}
	}
}

func TestRun_OpenPositionNotForceClosed(t *testing.T) {
	bars := quietSeries(40, 100)
	bars[38] = bullishBar(bars[38].TS, 100)

	res, err := newTestSim(nil).Run(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("open position must not be force-closed, got %d trades", len(res.Trades))
	}
	if res.OpenPosition == nil || res.OpenPosition.Side != model.SideLong {
		t.Fatalf("expected open LONG position, got %+v", res.OpenPosition)
	}
	assertClose(t, "final capital", res.FinalCapital, res.InitialCapital, 0)
	if !res.Summary.OpenPosition {
		t.Error("summary should report the open position")
	}
}

func TestRun_SingleOpenPositionAndOrder(t *testing.T) {
	// Alternate signals and exits; the listener must see strictly
	// alternating entry/exit events.
	bars := quietSeries(120, 100)
	for _, i := range []int{31, 50, 70, 90} {
		bars[i] = bullishBar(bars[i].TS, 100)
		bars[i+1] = bullishBar(bars[i+1].TS, 100) // ignored: already long
		bars[i+5] = quietBar(bars[i+5].TS, 90)     // stop
	}

	rec := &recorder{}
	res, err := newTestSim(rec).Run(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 4 {
		t.Fatalf("expected 4 trades, got %d", len(res.Trades))
	}
	for i, ev := range rec.events {
		want := "entry"
		if i%2 == 1 {
			want = "exit"
		}
		if ev.kind != want {
			t.Fatalf("event %d = %s, want %s", i, ev.kind, want)
		}
	}
	for i := 1; i < len(res.Trades); i++ {
		if res.Trades[i].EntryTime.Before(res.Trades[i-1].ExitTime) {
			t.Errorf("trade %d opened before trade %d closed", i, i-1)
		}
	}
	if res.Summary.MaxLossStreak != 4 {
		t.Errorf("max loss streak = %d, want 4", res.Summary.MaxLossStreak)
	}
}

func TestRun_FlatSeries(t *testing.T) {
	bars := quietSeries(100, 100)
	for i := range bars {
		bars[i].BBExpanding = false // constant price never widens the bands
	}
	res, err := newTestSim(nil).Run(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("flat series produced %d trades", len(res.Trades))
	}
	if res.Skipped[SkipVolatility] != 70 {
		t.Errorf("skipped for volatility = %d, want 70", res.Skipped[SkipVolatility])
	}
}

func TestRun_PacingAfterEntry(t *testing.T) {
	bars := quietSeries(60, 100)
	bars[31] = bullishBar(bars[31].TS, 100)
	bars[35] = quietBar(bars[35].TS, 90)
	bars[40] = bearishBar(bars[40].TS, 100)

	var slept []time.Duration
	sim := New(Options{
		Rules:        testRules(),
		PositionSize: 1,
		Pace:         100 * time.Millisecond,
		Logger:       logger.Discard(),
	}, nil)
	sim.SetSleep(func(d time.Duration) { slept = append(slept, d) })

	if _, err := sim.Run(bars); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slept) != 2 {
		t.Fatalf("expected one pause per entry (2), got %d", len(slept))
	}
	if slept[0] != 100*time.Millisecond {
		t.Errorf("pause = %s, want 100ms", slept[0])
	}
}

func TestRun_DayFilterAppliesToCapital(t *testing.T) {
	// 150 hourly bars: the last 2 days keep 49 bars starting at bar 101.
	bars := make([]model.EnrichedBar, 150)
	for i := range bars {
		bars[i] = quietBar(t0.Add(time.Duration(i)*time.Hour), float64(100+i))
	}
	sim := New(Options{Rules: testRules(), PositionSize: 2, Days: 2, Logger: logger.Discard()}, nil)

	res, err := sim.Run(bars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Bars != 49 {
		t.Errorf("bars after filter = %d, want 49", res.Bars)
	}
	// first kept close is 100+101
	assertClose(t, "initial capital", res.InitialCapital, 2*201, 0)
}

func TestFilterRecent(t *testing.T) {
	short := make([]model.EnrichedBar, 100)
	for i := range short {
		short[i] = quietBar(t0.Add(time.Duration(i)*24*time.Hour), 1)
	}
	if got := FilterRecent(short, 1); len(got) != 100 {
		t.Errorf("series of 100 bars must not be filtered, got %d", len(got))
	}

	long := quietSeries(300, 1) // 300 minutes
	if got := FilterRecent(long, 1); len(got) != 300 {
		t.Errorf("all bars are within one day, got %d", len(got))
	}
	if got := FilterRecent(long, 0); len(got) != 300 {
		t.Errorf("days=0 keeps everything, got %d", len(got))
	}
}
