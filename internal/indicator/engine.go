package indicator

import (
	"errors"
	"math"

	"forwardtest/internal/model"
)

// ErrInsufficientData is returned when there are no bars to enrich.
var ErrInsufficientData = errors.New("indicator: insufficient data")

// Params holds the indicator periods used by the strategy.
type Params struct {
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	EMAFast    int // 6
	EMAMid     int // 7
	EMASlow    int // 21
	BBPeriod   int
	BBStdDev   float64
	BBExpand   float64 // min width growth in percent
	RSIPeriod  int
}

// DefaultParams returns the periods the strategy was designed with.
func DefaultParams() Params {
	return Params{
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		EMAFast:    6,
		EMAMid:     7,
		EMASlow:    21,
		BBPeriod:   20,
		BBStdDev:   2,
		BBExpand:   0.5,
		RSIPeriod:  14,
	}
}

// Engine computes every strategy indicator for one bar series.
// Not safe for concurrent use.
type Engine struct {
	macd  *MACD
	ema6  *EMA
	ema7  *EMA
	ema21 *EMA
	bb    *Bollinger
	rsi   *RSI
}

// NewEngine creates an indicator engine with fresh state.
func NewEngine(p Params) *Engine {
	return &Engine{
		macd:  NewMACD(p.MACDFast, p.MACDSlow, p.MACDSignal),
		ema6:  NewEMA(p.EMAFast),
		ema7:  NewEMA(p.EMAMid),
		ema21: NewEMA(p.EMASlow),
		bb:    NewBollinger(p.BBPeriod, p.BBStdDev, p.BBExpand),
		rsi:   NewRSI(p.RSIPeriod),
	}
}

// Process feeds the next bar and returns it with indicator values attached.
// Values still in warm-up are 0.
func (e *Engine) Process(bar model.Bar) model.EnrichedBar {
	c := bar.Close
	e.macd.Update(c)
	e.ema6.Update(c)
	e.ema7.Update(c)
	e.ema21.Update(c)
	e.bb.Update(c)
	e.rsi.Update(c)

	eb := model.EnrichedBar{
		Bar:          bar,
		MACD:         finite(e.macd.Value()),
		MACDSignal:   finite(e.macd.Signal()),
		MACDHist:     finite(e.macd.Hist()),
		MACDHistPrev: finite(e.macd.PrevHist()),
		MACDBullish:  e.macd.Bullish(),
		MACDBearish:  e.macd.Bearish(),
		EMA6:         finite(e.ema6.Value()),
		EMA7:         finite(e.ema7.Value()),
		EMA21:        finite(e.ema21.Value()),
		BBWidth:      finite(e.bb.Width()),
		BBWidthPrev:  finite(e.bb.PrevWidth()),
		BBExpanding:  e.bb.Expanding(),
		VolumeQuote:  finite(bar.QuoteVolume()),
	}
	if e.bb.Ready() {
		eb.BBMid = finite(e.bb.Value())
		eb.BBUpper = finite(e.bb.Upper())
		eb.BBLower = finite(e.bb.Lower())
	}
	if e.rsi.Ready() {
		eb.RSI = finite(e.rsi.Value())
	}
	return eb
}

// Enrich computes indicators for a whole series with DefaultParams.
// The result has the same length and order as bars.
func Enrich(bars []model.Bar) ([]model.EnrichedBar, error) {
	return EnrichWith(DefaultParams(), bars)
}

// EnrichWith is Enrich with explicit periods.
func EnrichWith(p Params, bars []model.Bar) ([]model.EnrichedBar, error) {
	if len(bars) < 1 {
		return nil, ErrInsufficientData
	}
	e := NewEngine(p)
	out := make([]model.EnrichedBar, len(bars))
	for i, b := range bars {
		out[i] = e.Process(b)
	}
	return out, nil
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
