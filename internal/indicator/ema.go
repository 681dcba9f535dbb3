package indicator

// EMA calculates an Exponential Moving Average with alpha = 2/(span+1),
// seeded at the first value and without bias adjustment.
// O(1) per update, no window storage.
type EMA struct {
	span       int
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA indicator with the given span.
func NewEMA(span int) *EMA {
	return &EMA{
		span:       span,
		multiplier: 2.0 / float64(span+1),
	}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(v float64) {
	e.count++
	if e.count == 1 {
		e.current = v
		return
	}
	// Same as v*m + prev*(1-m), but a constant input stays exactly constant.
	e.current += e.multiplier * (v - e.current)
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count > 0 }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}
