package notification

import (
	"fmt"
	"math"
	"strings"

	"forwardtest/internal/model"
	"forwardtest/internal/report"
)

const rule = "────────────────────"

// TradeSignal describes a position entry.
func TradeSignal(side model.Side, price float64, bar model.EnrichedBar, capital float64) Message {
	direction, macd, ema := "BUY", "Bullish", "Price above"
	if side == model.SideShort {
		direction, macd, ema = "SELL", "Bearish", "Price below"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Price: $%.4f\n", price)
	fmt.Fprintf(&b, "Time: %s\n", bar.TS.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Capital: $%.2f\n\n", capital)
	b.WriteString("Conditions:\n")
	fmt.Fprintf(&b, "  • MACD: %s\n", macd)
	fmt.Fprintf(&b, "  • EMA6: %s\n", ema)
	b.WriteString("  • Bollinger: Expanding\n")
	fmt.Fprintf(&b, "  • Volume: %.0f USDT\n", bar.VolumeQuote)
	b.WriteString(rule)

	return Message{
		Kind:  KindTradeSignal,
		Title: fmt.Sprintf("%s signal (%s)", direction, side),
		Body:  b.String(),
		Level: LevelInfo,
	}
}

// TradeClose describes a position exit.
func TradeClose(side model.Side, pnlPct float64, reason model.ExitReason, capital float64) Message {
	outcome, level := "Profit", LevelInfo
	if pnlPct <= 0 {
		outcome, level = "Loss", LevelWarning
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Side: %s\n", side)
	fmt.Fprintf(&b, "Reason: %s\n", reasonText(reason))
	fmt.Fprintf(&b, "PnL: %+.2f%%\n", pnlPct)
	fmt.Fprintf(&b, "Capital: $%.2f\n", capital)
	b.WriteString(rule)

	return Message{
		Kind:  KindTradeClose,
		Title: fmt.Sprintf("Closed: %s %.2f%%", outcome, math.Abs(pnlPct)),
		Body:  b.String(),
		Level: level,
	}
}

func reasonText(r model.ExitReason) string {
	switch r {
	case model.ExitStopLoss:
		return "Stop-Loss"
	case model.ExitTakeProfit:
		return "Take-Profit"
	case model.ExitTrailingStop:
		return "Trailing Stop"
	default:
		return string(r)
	}
}

// DivergenceAlert describes a divergence event. HIGH severity is critical.
func DivergenceAlert(ev model.DivergenceEvent) Message {
	level := LevelWarning
	if ev.Severity == model.SeverityHigh {
		level = LevelCritical
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Type: %s\n", ev.Type)
	fmt.Fprintf(&b, "Indicator: %s\n", ev.Indicator)
	fmt.Fprintf(&b, "Price: $%.4f\n", ev.Price)
	fmt.Fprintf(&b, "Time: %s\n\n", ev.TS.UTC().Format("2006-01-02 15:04:05"))
	b.WriteString("Details:\n")
	fmt.Fprintf(&b, "  • %s\n", ev.PriceAction)
	fmt.Fprintf(&b, "  • %s\n", ev.IndicatorAction)
	b.WriteString(rule)

	return Message{
		Kind:  KindDivergenceAlert,
		Title: "Divergence detected",
		Body:  b.String(),
		Level: level,
	}
}

// RunSummary reports the statistics of a finished run.
func RunSummary(asset string, st report.Statistics) Message {
	var b strings.Builder
	b.WriteString("Results:\n")
	fmt.Fprintf(&b, "  • Trades: %d\n", st.TotalTrades)
	fmt.Fprintf(&b, "  • Win Rate: %.1f%%\n", st.WinRate)
	fmt.Fprintf(&b, "  • Profit Factor: %.2f\n", st.ProfitFactor)
	fmt.Fprintf(&b, "  • Expectancy: %+.2f%%\n", st.Expectancy)
	fmt.Fprintf(&b, "  • Total Return: %+.2f%%\n", st.TotalReturn)
	fmt.Fprintf(&b, "  • Max Drawdown: %.2f%%\n\n", st.MaxDrawdown)
	b.WriteString("Divergences:\n")
	fmt.Fprintf(&b, "  • Total: %d\n", st.DivergenceCount)
	fmt.Fprintf(&b, "  • Rate: %.1f%%\n", st.DivergenceRate)
	b.WriteString(rule)

	return Message{
		Kind:  KindRunSummary,
		Title: fmt.Sprintf("Forward testing report: %s", strings.ToUpper(asset)),
		Body:  b.String(),
		Level: LevelInfo,
	}
}
