package indicator

// RSI calculates the Relative Strength Index from simple rolling means of
// gains and losses over the last period deltas.
//
// The first value fed contributes a zero delta, so the first RSI is available
// after period values. When the average loss is zero RSI is 100.
type RSI struct {
	period    int
	gains     []float64
	losses    []float64
	idx       int
	count     int
	prevClose float64
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		gains:  make([]float64, period),
		losses: make([]float64, period),
	}
}

func (r *RSI) Name() string { return "RSI" }

func (r *RSI) Update(v float64) {
	delta := 0.0
	if r.count > 0 {
		delta = v - r.prevClose
	}
	r.prevClose = v

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	r.gains[r.idx] = gain
	r.losses[r.idx] = loss
	r.idx = (r.idx + 1) % r.period
	r.count++

	if r.count < r.period {
		return
	}

	sumGain, sumLoss := 0.0, 0.0
	for i := 0; i < r.period; i++ {
		sumGain += r.gains[i]
		sumLoss += r.losses[i]
	}
	p := float64(r.period)
	r.current = rsiFromAverages(sumGain/p, sumLoss/p)
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.count >= r.period }

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
