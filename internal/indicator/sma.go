package indicator

import "math"

// SMA calculates a Simple Moving Average over a rolling window and exposes
// the sample standard deviation of the same window.
// Uses a preallocated circular buffer.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	current float64
	stddev  float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(v float64) {
	s.buf[s.idx] = v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count < s.period {
		return
	}

	// Summed from the window every time so long runs don't accumulate drift.
	// Deviations are taken from buf[0], so a constant window is exactly flat.
	ref := s.buf[0]
	sum, sq := 0.0, 0.0
	for _, x := range s.buf {
		d := x - ref
		sum += d
		sq += d * d
	}
	n := float64(s.period)
	s.current = ref + sum/n
	if s.period > 1 {
		v := (sq - sum*sum/n) / (n - 1)
		if v < 0 {
			v = 0
		}
		s.stddev = math.Sqrt(v)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// StdDev returns the sample (n-1) standard deviation of the window.
func (s *SMA) StdDev() float64 { return s.stddev }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.current = 0
	s.stddev = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
