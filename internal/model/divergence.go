package model

import "time"

// DivergenceType classifies a divergence event.
type DivergenceType string

const (
	DivergenceBullish DivergenceType = "BULLISH"
	DivergenceBearish DivergenceType = "BEARISH"
	DivergenceWarning DivergenceType = "WARNING"
)

// Severity of a divergence event.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
)

// Indicator names used on divergence events.
const (
	IndicatorRSI    = "RSI"
	IndicatorMACD   = "MACD"
	IndicatorVolume = "Volume"
)

// TradeResult is the outcome of the trade a divergence fell into.
type TradeResult string

const (
	TradeWin  TradeResult = "WIN"
	TradeLoss TradeResult = "LOSS"
)

// DivergenceEvent is a moment where price action and an indicator disagree.
// The trade fields are only set when the event falls inside a trade window.
type DivergenceEvent struct {
	TS              time.Time      `json:"timestamp"`
	Type            DivergenceType `json:"type"`
	Indicator       string         `json:"indicator"`
	PriceAction     string         `json:"price_action"`
	IndicatorAction string         `json:"indicator_action"`
	Severity        Severity       `json:"severity"`
	Price           float64        `json:"price"`

	ImpactedTrade bool        `json:"impacted_trade,omitempty"`
	TradeSide     Side        `json:"trade_side,omitempty"`
	TradeResult   TradeResult `json:"trade_result,omitempty"`
}
