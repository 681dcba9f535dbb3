package indicator

// MACD tracks the MACD line, its signal line and the histogram, and flags
// histogram zero-crossings.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA

	count    int
	line     float64
	hist     float64
	prevHist float64
}

// NewMACD creates a MACD with the given fast, slow and signal spans.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

func (m *MACD) Name() string { return "MACD" }

func (m *MACD) Update(v float64) {
	m.fast.Update(v)
	m.slow.Update(v)
	m.line = m.fast.Value() - m.slow.Value()
	m.signal.Update(m.line)

	m.prevHist = m.hist
	m.hist = m.line - m.signal.Value()
	m.count++
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.line }
func (m *MACD) Ready() bool    { return m.count > 0 }

// Signal returns the signal line.
func (m *MACD) Signal() float64 { return m.signal.Value() }

// Hist returns the histogram (MACD - signal).
func (m *MACD) Hist() float64 { return m.hist }

// PrevHist returns the previous bar's histogram, 0 before the second update.
func (m *MACD) PrevHist() float64 {
	if m.count < 2 {
		return 0
	}
	return m.prevHist
}

// Bullish reports a histogram cross from <= 0 to > 0 on the latest update.
func (m *MACD) Bullish() bool {
	return m.count >= 2 && m.hist > 0 && m.prevHist <= 0
}

// Bearish reports a histogram cross from >= 0 to < 0 on the latest update.
func (m *MACD) Bearish() bool {
	return m.count >= 2 && m.hist < 0 && m.prevHist >= 0
}
