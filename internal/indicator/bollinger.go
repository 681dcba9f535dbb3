package indicator

// Bollinger computes Bollinger Bands over an SMA window and tracks whether
// the band width is expanding.
type Bollinger struct {
	sma       *SMA
	k         float64
	expandPct float64

	width     float64
	prevWidth float64
	ready     bool
	prevReady bool
}

// NewBollinger creates bands of k standard deviations over period bars.
// expandPct is the minimum relative width growth (in percent) that counts
// as expanding.
func NewBollinger(period int, k, expandPct float64) *Bollinger {
	return &Bollinger{
		sma:       NewSMA(period),
		k:         k,
		expandPct: expandPct,
	}
}

func (b *Bollinger) Name() string { return "BB" }

// Update feeds a close price.
func (b *Bollinger) Update(close float64) {
	b.sma.Update(close)

	b.prevWidth = b.width
	b.prevReady = b.ready
	b.ready = b.sma.Ready()
	b.width = 0
	if b.ready && close != 0 {
		b.width = (b.Upper() - b.Lower()) / close * 100
	}
}

// Value returns the middle band.
func (b *Bollinger) Value() float64 { return b.sma.Value() }
func (b *Bollinger) Ready() bool    { return b.ready }

// Upper returns the upper band, 0 during warm-up.
func (b *Bollinger) Upper() float64 {
	if !b.ready {
		return 0
	}
	return b.sma.Value() + b.k*b.sma.StdDev()
}

// Lower returns the lower band, 0 during warm-up.
func (b *Bollinger) Lower() float64 {
	if !b.ready {
		return 0
	}
	return b.sma.Value() - b.k*b.sma.StdDev()
}

// Width returns (upper-lower)/close*100 for the latest bar.
func (b *Bollinger) Width() float64 { return b.width }

// PrevWidth returns the previous bar's width, 0 during warm-up.
func (b *Bollinger) PrevWidth() float64 {
	if !b.prevReady {
		return 0
	}
	return b.prevWidth
}

// Expanding reports whether width grew by more than expandPct percent over
// the previous bar. A zero previous width never counts as expanding.
func (b *Bollinger) Expanding() bool {
	if !b.ready || !b.prevReady || b.prevWidth == 0 {
		return false
	}
	return (b.width-b.prevWidth)/b.prevWidth*100 > b.expandPct
}
