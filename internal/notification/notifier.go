// Package notification delivers run events (trade signals, closes,
// divergence alerts, run summaries) to external channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// Kind identifies the run event a message describes.
type Kind string

const (
	KindTradeSignal     Kind = "trade_signal"
	KindTradeClose      Kind = "trade_close"
	KindDivergenceAlert Kind = "divergence_alert"
	KindRunSummary      Kind = "run_summary"
)

// Level represents the severity of a message.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Message is a formatted notification.
type Message struct {
	Kind  Kind   `json:"kind"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Level Level  `json:"level"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers a message. Returns error if delivery fails.
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Error wraps a delivery failure. It is logged and counted, never returned
// to the simulation.
type Error struct {
	Kind    Kind
	Channel string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("notification %s via %s: %v", e.Kind, e.Channel, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// LogNotifier writes messages to the standard logger.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	log.Printf("[notify] [%s] %s: %s", msg.Level, msg.Title, msg.Body)
	return nil
}

// Multi fans a message out to every notifier. All are tried; the errors
// are joined.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
