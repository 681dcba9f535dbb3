package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"forwardtest/internal/model"
	"forwardtest/internal/pipeline"
	"forwardtest/internal/strategy"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, out *pipeline.Outcome) {
	fmt.Fprintf(w, "========================================================\n")
	fmt.Fprintf(w, "  %s REPORT: %s (%s candles, %d bars)\n", strings.ToUpper(string(out.Mode)), out.Asset, out.Granularity, out.Bars)
	fmt.Fprintf(w, "  run %s\n", out.RunID)
	fmt.Fprintf(w, "========================================================\n\n")

	if out.Report.NoTrades {
		fmt.Fprintln(w, "  No trades were generated.")
	} else {
		tbl := tablewriter.NewWriter(w)
		tbl.Header("#", "Side", "Entry time", "Entry", "Exit", "Reason", "Dur(min)", "PnL%", "PnL$")
		for i, t := range out.Trades {
			tbl.Append(
				fmt.Sprintf("%d", i+1),
				string(t.Side),
				t.EntryTime.Format("01-02 15:04"),
				fmt.Sprintf("%.2f", t.EntryPrice),
				fmt.Sprintf("%.2f", t.ExitPrice),
				string(t.Reason),
				fmt.Sprintf("%.0f", t.DurationMin),
				fmt.Sprintf("%+.2f", t.PnLPct),
				fmt.Sprintf("%+.2f", t.PnLQuote),
			)
		}
		tbl.Render()
	}

	st := out.Statistics
	fmt.Fprintf(w, "\n  --- STATISTICS ---\n")
	fmt.Fprintf(w, "  Total trades:      %d\n", st.TotalTrades)
	fmt.Fprintf(w, "  Win rate:          %.2f%%\n", st.WinRate)
	fmt.Fprintf(w, "  Profit factor:     %.2f\n", st.ProfitFactor)
	fmt.Fprintf(w, "  Expectancy:        %.2f%%\n", st.Expectancy)
	fmt.Fprintf(w, "  Max drawdown:      %.2f%%\n", st.MaxDrawdown)
	fmt.Fprintf(w, "  Total return:      %.2f%%\n", st.TotalReturn)
	fmt.Fprintf(w, "  Final capital:     %.2f\n", out.FinalCapital)
	fmt.Fprintf(w, "  Divergences:       %d (%.1f per 100 trades)\n", st.DivergenceCount, st.DivergenceRate)
	if out.OpenPosition != nil {
		fmt.Fprintf(w, "  Open position:     %s @ %.2f since %s\n",
			out.OpenPosition.Side, out.OpenPosition.EntryPrice, out.OpenPosition.EntryTime.Format("01-02 15:04"))
	}

	if len(out.Skipped) > 0 {
		reasons := make([]strategy.SkipReason, 0, len(out.Skipped))
		for r := range out.Skipped {
			reasons = append(reasons, r)
		}
		sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
		fmt.Fprintf(w, "\n  --- SKIPPED BARS ---\n")
		for _, r := range reasons {
			fmt.Fprintf(w, "  %-20s %d\n", r, out.Skipped[r])
		}
	}
}

func printDivergences(w io.Writer, out *pipeline.Outcome) {
	if len(out.Divergences) == 0 {
		fmt.Fprintln(w, "No divergences found.")
		return
	}

	tbl := tablewriter.NewWriter(w)
	tbl.Header("Time", "Indicator", "Type", "Severity", "Price", "Price action", "Indicator action", "Trade")
	for _, ev := range out.Divergences {
		trade := "-"
		if ev.ImpactedTrade {
			trade = fmt.Sprintf("%s %s", ev.TradeSide, ev.TradeResult)
		}
		tbl.Append(
			ev.TS.Format("01-02 15:04"),
			ev.Indicator,
			string(ev.Type),
			string(ev.Severity),
			fmt.Sprintf("%.2f", ev.Price),
			ev.PriceAction,
			ev.IndicatorAction,
			trade,
		)
	}
	tbl.Render()

	a := out.Analysis
	fmt.Fprintf(w, "\n  --- ANALYSIS ---\n")
	fmt.Fprintf(w, "  Total divergences: %d\n", a.Total)

	names := make([]string, 0, len(a.ByIndicator))
	for name := range a.ByIndicator {
		names = append(names, name)
	}
	sort.Strings(names)
	rates := tablewriter.NewWriter(w)
	rates.Header("Indicator", "Events", "Impacted losses", "Error rate", "Impact")
	for _, name := range names {
		r := a.ByIndicator[name]
		rates.Append(
			name,
			fmt.Sprintf("%d", r.Count),
			fmt.Sprintf("%d", r.ImpactedLosses),
			fmt.Sprintf("%.1f%%", r.ErrorRate),
			r.ImpactLevel,
		)
	}
	rates.Render()
	fmt.Fprintf(w, "  Most problematic:  %s\n", a.MostProblematic)
	fmt.Fprintf(w, "  Recommendation:    %s\n", a.Recommendation)
}

func printHistory(w io.Writer, runs []model.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tbl := tablewriter.NewWriter(w)
	tbl.Header("Run", "Mode", "Asset", "Started", "Bars", "Final cap", "Return%")
	for _, r := range runs {
		ret := fmt.Sprintf("%+.2f", r.ReturnPct)
		if r.NoTrades {
			ret = "no trades"
		}
		tbl.Append(
			r.RunID,
			r.Mode,
			r.Asset,
			r.StartedAt.Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", r.Bars),
			fmt.Sprintf("%.2f", r.FinalCap),
			ret,
		)
	}
	tbl.Render()
}
