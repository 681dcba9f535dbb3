package strategy

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"forwardtest/internal/model"
	"forwardtest/internal/portfolio"
)

// ErrEmptySeries is returned when too few bars remain after filtering.
var ErrEmptySeries = errors.New("strategy: empty series")

const (
	// DefaultWarmup is the number of leading bars never traded.
	DefaultWarmup = 30

	// recentFilterMinBars is the series length above which the day window applies.
	recentFilterMinBars = 100
)

// Listener observes entries and exits in trade order. Implementations must
// not block for long; the simulation waits for each call to return.
type Listener interface {
	OnEntry(pos model.Position, bar model.EnrichedBar, capital float64)
	OnExit(t model.Trade, capital float64)
}

// Options configures a Simulator.
type Options struct {
	Rules        Rules
	PositionSize float64 // base units

	// Days keeps only the most recent N days when the series has more than
	// 100 bars. 0 keeps everything.
	Days int

	// Warmup bars are skipped at the start. 0 means DefaultWarmup.
	Warmup int

	// Pace is slept after every entry to emulate a live feed. 0 disables.
	Pace time.Duration

	// AutoPauseAfterLosses is reported when reached but never enforced.
	AutoPauseAfterLosses int

	Logger *slog.Logger
}

// Result is the outcome of one simulation run.
type Result struct {
	Trades         []model.Trade
	Equity         []model.EquityPoint
	OpenPosition   *model.Position // still open at the end, never force-closed
	InitialCapital float64
	FinalCapital   float64
	Bars           int // bars after the day filter
	Skipped        map[SkipReason]int
	Summary        portfolio.PnLSummary
}

// Simulator walks an enriched series through the state machine.
// A Simulator may be reused; each Run owns its own state.
type Simulator struct {
	opts     Options
	listener Listener
	sleep    func(time.Duration)
	log      *slog.Logger
}

// New creates a simulator. listener may be nil.
func New(opts Options, listener Listener) *Simulator {
	if opts.Warmup <= 0 {
		opts.Warmup = DefaultWarmup
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Simulator{
		opts:     opts,
		listener: listener,
		sleep:    time.Sleep,
		log:      l.With(slog.String("component", "simulator")),
	}
}

// SetSleep replaces the pacing sleep function (tests).
func (s *Simulator) SetSleep(fn func(time.Duration)) { s.sleep = fn }

// Run simulates the strategy over bars, which must be sorted by time.
// It fails with ErrEmptySeries when fewer than Warmup+1 bars remain after
// the day filter. A run with no trades is not an error.
func (s *Simulator) Run(bars []model.EnrichedBar) (*Result, error) {
	bars = FilterRecent(bars, s.opts.Days)
	if len(bars) < s.opts.Warmup+1 {
		return nil, fmt.Errorf("%w: %d bars after filtering, need %d", ErrEmptySeries, len(bars), s.opts.Warmup+1)
	}

	ledger := portfolio.NewLedger(s.opts.PositionSize, bars[0].Close, bars[0].TS)
	skipped := make(map[SkipReason]int, 3)
	var pos *model.Position
	state := StateFlat
	pauseWarned := false

	s.log.Info("simulation started",
		slog.Int("bars", len(bars)),
		slog.Float64("initial_capital", ledger.Initial()),
		slog.Time("from", bars[0].TS),
		slog.Time("to", bars[len(bars)-1].TS),
	)

	for i := s.opts.Warmup; i < len(bars); i++ {
		bar := bars[i]
		d := Evaluate(s.opts.Rules, pos, bar)

		switch d.Action {
		case ActionSkip:
			skipped[d.Skip]++

		case ActionEnter:
			pos = &model.Position{Side: d.Side, EntryPrice: d.Price, EntryTime: bar.TS}
			s.log.Debug("position opened",
				slog.String("side", string(d.Side)),
				slog.Float64("entry", d.Price),
				slog.Time("ts", bar.TS),
			)
			if s.listener != nil {
				s.listener.OnEntry(*pos, bar, ledger.Capital())
			}
			if s.opts.Pace > 0 {
				s.sleep(s.opts.Pace)
			}

		case ActionExit:
			t := closeTrade(pos, d, bar.TS, ledger.Size())
			capital := ledger.Close(t)
			pos = nil
			s.log.Debug("position closed",
				slog.String("side", string(t.Side)),
				slog.String("reason", string(t.Reason)),
				slog.Float64("pnl_pct", t.PnLPct),
				slog.Float64("capital", capital),
			)
			if s.listener != nil {
				s.listener.OnExit(t, capital)
			}
			if n := s.opts.AutoPauseAfterLosses; n > 0 && !pauseWarned && ledger.LossStreak() >= n {
				pauseWarned = true
				s.log.Warn("consecutive loss limit reached; auto-pause is not enforced",
					slog.Int("losses", ledger.LossStreak()),
				)
			}
		}
		state = d.Next(state)
	}

	last := bars[len(bars)-1]
	res := &Result{
		Trades:         ledger.Trades(),
		Equity:         ledger.Equity(),
		OpenPosition:   pos,
		InitialCapital: ledger.Initial(),
		FinalCapital:   ledger.Capital(),
		Bars:           len(bars),
		Skipped:        skipped,
		Summary:        ledger.Summary(pos, last.Close),
	}

	s.log.Info("simulation finished",
		slog.Int("trades", len(res.Trades)),
		slog.String("final_state", string(state)),
		slog.Float64("final_capital", res.FinalCapital),
	)
	return res, nil
}

func closeTrade(pos *model.Position, d Decision, exitTime time.Time, size float64) model.Trade {
	pnl, pct := portfolio.RealizedPnL(pos.Side, pos.EntryPrice, d.Price, size)
	return model.Trade{
		Side:        pos.Side,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   d.Price,
		EntryTime:   pos.EntryTime,
		ExitTime:    exitTime,
		DurationMin: exitTime.Sub(pos.EntryTime).Minutes(),
		Reason:      d.Reason,
		PnLQuote:    pnl,
		PnLPct:      pct,
	}
}

// FilterRecent keeps the bars within days of the last bar when there are
// more than 100 bars. Bars must be sorted by time.
func FilterRecent(bars []model.EnrichedBar, days int) []model.EnrichedBar {
	if days <= 0 || len(bars) <= recentFilterMinBars {
		return bars
	}
	cutoff := bars[len(bars)-1].TS.Add(-time.Duration(days) * 24 * time.Hour)
	for i, b := range bars {
		if !b.TS.Before(cutoff) {
			return bars[i:]
		}
	}
	return nil
}
