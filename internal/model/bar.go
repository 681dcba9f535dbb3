package model

import "time"

// Bar is a single OHLC candle for the traded asset.
// Prices are quoted in the quote currency (USD/USDT); Volume is in base units.
type Bar struct {
	TS     time.Time `json:"timestamp"` // bucket start time
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"` // base-asset volume
}

// QuoteVolume returns the bar volume expressed in the quote currency.
func (b *Bar) QuoteVolume() float64 {
	return b.Volume * b.Close
}

// EnrichedBar is a Bar plus every indicator the strategy and the divergence
// scans read. All derived fields are 0 during warm-up.
type EnrichedBar struct {
	Bar

	MACD         float64 `json:"macd"`
	MACDSignal   float64 `json:"macd_signal"`
	MACDHist     float64 `json:"macd_diff"`
	MACDHistPrev float64 `json:"macd_prev"`
	MACDBullish  bool    `json:"macd_bullish"`
	MACDBearish  bool    `json:"macd_bearish"`

	EMA6  float64 `json:"ema6"`
	EMA7  float64 `json:"ema7"`
	EMA21 float64 `json:"ema21"`

	BBMid       float64 `json:"bb_mid"`
	BBUpper     float64 `json:"bb_high"`
	BBLower     float64 `json:"bb_low"`
	BBWidth     float64 `json:"bb_width"`
	BBWidthPrev float64 `json:"bb_width_prev"`
	BBExpanding bool    `json:"bb_expanding"`

	RSI float64 `json:"rsi"`

	VolumeQuote float64 `json:"volume_usdt"`
}
