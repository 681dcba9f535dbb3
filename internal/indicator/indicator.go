// Package indicator computes the technical indicators the strategy reads.
//
// Every indicator is a streaming calculator: it is fed one value at a time
// and only ever sees values already fed, so anything built on top of them is
// causal by construction. Engine combines them into model.EnrichedBar rows.
package indicator

// Indicator is the interface for the streaming calculators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA", "SMA", "RSI").
	Name() string

	// Update feeds the next value (usually a close price).
	Update(v float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}
