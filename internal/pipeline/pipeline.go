// Package pipeline runs one backtest or forward test end to end:
// fetch → enrich → simulate → detect divergences → report → persist → notify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"forwardtest/config"
	"forwardtest/internal/divergence"
	"forwardtest/internal/indicator"
	"forwardtest/internal/logger"
	"forwardtest/internal/marketdata"
	"forwardtest/internal/metrics"
	"forwardtest/internal/model"
	"forwardtest/internal/notification"
	"forwardtest/internal/portfolio"
	"forwardtest/internal/report"
	"forwardtest/internal/store/snapshot"
	"forwardtest/internal/strategy"
)

// Mode selects how a run is executed.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeForward  Mode = "forward"
)

// DefaultForwardPace is slept after each entry in forward mode.
const DefaultForwardPace = 100 * time.Millisecond

// ResultsPublisher receives the results of every successful run.
// *redis.ResultsCache and *gateway.Hub satisfy it.
type ResultsPublisher interface {
	Publish(ctx context.Context, v any) error
}

// Deps are the collaborators of a Runner. Everything except Source is
// optional.
type Deps struct {
	Source     marketdata.Source
	Notifiers  []notification.Notifier // always-on channels (log, webhook, hub)
	Journal    model.RunRecorder
	Snapshots  *snapshot.Store
	Publishers []ResultsPublisher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	Asset       string
	Indicators  indicator.Params
	Divergence  divergence.Params
	Dispatch    notification.DispatcherConfig
	ForwardPace time.Duration
}

// Request is one run.
type Request struct {
	Mode     Mode
	Strategy config.Strategy
	Days     int // overrides the fetch window for backtests when > 0
}

// Outcome is everything a successful run produced. NoTrades on Report
// tells a zero-trade run apart from a failure, which returns an error.
type Outcome struct {
	RunID        string
	Mode         Mode
	Asset        string
	Granularity  string
	Bars         int
	StartedAt    time.Time
	FinishedAt   time.Time
	Trades       []model.Trade
	Equity       []model.EquityPoint
	Divergences  []model.DivergenceEvent
	Report       report.Report
	Statistics   report.Statistics
	Analysis     divergence.Analysis
	OpenPosition *model.Position
	FinalCapital float64
	Summary      portfolio.PnLSummary
	Skipped      map[strategy.SkipReason]int
	Strategy     config.Strategy
}

// Snapshot converts the outcome to the persisted results document.
func (o *Outcome) Snapshot() snapshot.Results {
	st := o.Strategy
	finished := o.FinishedAt
	res := snapshot.Results{
		RunID:        o.RunID,
		Mode:         string(o.Mode),
		Trades:       o.Trades,
		EquityCurve:  o.Equity,
		Divergences:  o.Divergences,
		Statistics:   o.Statistics,
		NoTrades:     o.Report.NoTrades,
		OpenPosition: o.OpenPosition,
		LastUpdate:   &finished,
		Config:       &st,
	}
	if res.Trades == nil {
		res.Trades = []model.Trade{}
	}
	if res.EquityCurve == nil {
		res.EquityCurve = []model.EquityPoint{}
	}
	if res.Divergences == nil {
		res.Divergences = []model.DivergenceEvent{}
	}
	return res
}

// Runner executes runs. It holds no per-run state, so concurrent runs are
// safe as long as the collaborators are.
type Runner struct {
	deps  Deps
	log   *slog.Logger
	newID func() string
	sleep func(time.Duration)
	now   func() time.Time
}

// New creates a Runner.
func New(deps Deps) (*Runner, error) {
	if deps.Source == nil {
		return nil, errors.New("pipeline: source is required")
	}
	if deps.Asset == "" {
		deps.Asset = "bitcoin"
	}
	if deps.Indicators == (indicator.Params{}) {
		deps.Indicators = indicator.DefaultParams()
	}
	if deps.Divergence == (divergence.Params{}) {
		deps.Divergence = divergence.DefaultParams()
	}
	if deps.ForwardPace <= 0 {
		deps.ForwardPace = DefaultForwardPace
	}
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Runner{
		deps:  deps,
		log:   l.With(slog.String("component", "pipeline")),
		newID: uuid.NewString,
		sleep: time.Sleep,
		now:   time.Now,
	}, nil
}

// Run executes req. Data, indicator and simulation failures are returned;
// persistence and notification failures are logged only.
func (r *Runner) Run(ctx context.Context, req Request) (*Outcome, error) {
	if req.Mode == "" {
		req.Mode = ModeBacktest
	}
	if req.Mode != ModeBacktest && req.Mode != ModeForward {
		return nil, fmt.Errorf("pipeline: unknown mode %q", req.Mode)
	}
	if err := req.Strategy.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: strategy: %w", err)
	}

	runID := r.newID()
	ctx = logger.WithRunID(ctx, runID)
	log := r.log.With(logger.LogWithRun(ctx)...).With(slog.String("mode", string(req.Mode)))
	started := r.now()

	out, err := r.run(ctx, log, runID, started, req)
	elapsed := r.now().Sub(started)
	if err != nil {
		r.deps.Metrics.ObserveRun(string(req.Mode), "error", elapsed, 0)
		log.Error("run failed", slog.Any("err", err), slog.Duration("elapsed", elapsed))
		return nil, err
	}
	r.deps.Metrics.ObserveRun(string(req.Mode), "ok", elapsed, out.FinalCapital)
	log.Info("run finished",
		slog.Int("trades", len(out.Trades)),
		slog.Int("divergences", len(out.Divergences)),
		slog.Float64("total_return_pct", out.Statistics.TotalReturn),
		slog.Duration("elapsed", elapsed),
	)
	return out, nil
}

func (r *Runner) run(ctx context.Context, log *slog.Logger, runID string, started time.Time, req Request) (*Outcome, error) {
	st := req.Strategy
	forward := req.Mode == ModeForward

	days := st.ActualDays()
	simDays := st.Days
	if req.Days > 0 {
		days, simDays = req.Days, req.Days
	}
	if forward {
		days, simDays = 1, 0
	}

	fetchStart := r.now()
	bars, err := r.deps.Source.FetchOHLC(ctx, r.deps.Asset, days)
	r.deps.Metrics.ObserveFetch(r.now().Sub(fetchStart))
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch: %w", err)
	}
	log.Info("bars fetched",
		slog.String("asset", r.deps.Asset),
		slog.Int("days", days),
		slog.String("granularity", marketdata.Granularity(days)),
		slog.Int("bars", len(bars)),
	)

	enriched, err := indicator.EnrichWith(r.deps.Indicators, bars)
	if err != nil {
		return nil, fmt.Errorf("pipeline: indicators: %w", err)
	}

	rules, err := strategy.NewRules(st)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	disp := notification.NewDispatcher(r.notifier(st), r.deps.Dispatch, r.deps.Metrics, log)
	defer disp.Close()

	opts := strategy.Options{
		Rules:                rules,
		PositionSize:         st.PositionSize,
		Days:                 simDays,
		AutoPauseAfterLosses: st.AutoPauseAfterLosses,
		Logger:               log,
	}
	if forward {
		opts.Pace = r.deps.ForwardPace
	}
	sim := strategy.New(opts, &runListener{n: disp, metrics: r.deps.Metrics, notify: forward})
	sim.SetSleep(r.sleep)

	res, err := sim.Run(enriched)
	if err != nil {
		return nil, fmt.Errorf("pipeline: simulate: %w", err)
	}

	events := divergence.Analyze(enriched, res.Trades, r.deps.Divergence)
	for _, ev := range events {
		r.deps.Metrics.Divergence(ev.Indicator)
	}
	rep := report.Generate(res.Trades, res.Equity, res.InitialCapital, res.FinalCapital)
	stats := report.NewStatistics(rep, len(events))

	out := &Outcome{
		RunID:        runID,
		Mode:         req.Mode,
		Asset:        r.deps.Asset,
		Granularity:  marketdata.Granularity(days),
		Bars:         res.Bars,
		StartedAt:    started,
		FinishedAt:   r.now(),
		Trades:       res.Trades,
		Equity:       res.Equity,
		Divergences:  events,
		Report:       rep,
		Statistics:   stats,
		Analysis:     divergence.Summarize(events),
		OpenPosition: res.OpenPosition,
		FinalCapital: res.FinalCapital,
		Summary:      res.Summary,
		Skipped:      res.Skipped,
		Strategy:     st,
	}

	r.persist(ctx, log, out)

	if forward {
		for _, ev := range events {
			if ev.Severity == model.SeverityHigh {
				disp.Enqueue(notification.DivergenceAlert(ev))
			}
		}
	}
	disp.Enqueue(notification.RunSummary(r.deps.Asset, stats))
	return out, nil
}

// notifier fans out to the always-on channels plus Telegram when the
// strategy enables it.
func (r *Runner) notifier(st config.Strategy) notification.Notifier {
	multi := make(notification.Multi, 0, len(r.deps.Notifiers)+1)
	multi = append(multi, r.deps.Notifiers...)
	if st.EnableTelegram && st.TelegramToken != "" {
		multi = append(multi, notification.NewTelegramNotifier(st.TelegramToken, st.TelegramChatID))
	}
	return multi
}

func (r *Runner) persist(ctx context.Context, log *slog.Logger, out *Outcome) {
	snap := out.Snapshot()

	if r.deps.Snapshots != nil {
		if err := r.deps.Snapshots.SaveResults(snap); err != nil {
			log.Error("save results snapshot", slog.Any("err", err))
		}
	}
	if r.deps.Journal != nil {
		if err := r.deps.Journal.RecordRun(ctx, out.Record()); err != nil {
			log.Error("journal run", slog.Any("err", err))
		}
	}
	for _, p := range r.deps.Publishers {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, snap); err != nil {
			log.Warn("publish results", slog.Any("err", err))
		}
	}
}

// Record converts the outcome to a journal record.
func (o *Outcome) Record() model.RunRecord {
	return model.RunRecord{
		RunID:       o.RunID,
		Mode:        string(o.Mode),
		Asset:       o.Asset,
		StartedAt:   o.StartedAt,
		FinishedAt:  o.FinishedAt,
		Bars:        o.Bars,
		NoTrades:    o.Report.NoTrades,
		FinalCap:    o.FinalCapital,
		ReturnPct:   o.Statistics.TotalReturn,
		Trades:      o.Trades,
		Divergences: o.Divergences,
	}
}
