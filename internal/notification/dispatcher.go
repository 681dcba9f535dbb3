package notification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder receives delivery outcomes; *metrics.Metrics satisfies it.
type Recorder interface {
	NotificationSent(kind string, err error)
	NotificationDropped(kind string)
}

// DispatcherConfig tunes the delivery queue.
type DispatcherConfig struct {
	QueueSize   int           // buffered messages; default 256
	MaxBlock    time.Duration // longest Enqueue waits on a full queue; default 200ms
	SendTimeout time.Duration // per-message delivery deadline; default 15s
}

// Dispatcher delivers messages on a single worker goroutine so they arrive
// in the order they were enqueued. Delivery failures are logged and counted
// and never reach the caller.
type Dispatcher struct {
	notifier Notifier
	cfg      DispatcherConfig
	rec      Recorder
	log      *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	done   chan struct{}

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewDispatcher starts the worker. rec and logger may be nil.
func NewDispatcher(n Notifier, cfg DispatcherConfig, rec Recorder, logger *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxBlock <= 0 {
		cfg.MaxBlock = 200 * time.Millisecond
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		notifier: n,
		cfg:      cfg,
		rec:      rec,
		log:      logger.With("component", "dispatcher"),
		queue:    make(chan Message, cfg.QueueSize),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Send enqueues msg, satisfying Notifier. It never returns a delivery error.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	d.Enqueue(msg)
	return nil
}

// Enqueue queues msg for delivery. When the queue is full it waits up to
// MaxBlock, then drops the message and returns false.
func (d *Dispatcher) Enqueue(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(msg, "dispatcher closed")
		return false
	}

	select {
	case d.queue <- msg:
		return true
	default:
	}

	timer := time.NewTimer(d.cfg.MaxBlock)
	defer timer.Stop()
	select {
	case d.queue <- msg:
		return true
	case <-timer.C:
		d.drop(msg, "queue full")
		return false
	}
}

func (d *Dispatcher) drop(msg Message, why string) {
	d.dropped.Add(1)
	if d.rec != nil {
		d.rec.NotificationDropped(string(msg.Kind))
	}
	d.log.Warn("notification dropped", "kind", msg.Kind, "reason", why)
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	err := d.notifier.Send(ctx, msg)
	if d.rec != nil {
		d.rec.NotificationSent(string(msg.Kind), err)
	}
	if err != nil {
		var nerr *Error
		if !errors.As(err, &nerr) {
			err = &Error{Kind: msg.Kind, Channel: "dispatcher", Err: err}
		}
		d.failed.Add(1)
		d.log.Error("notification failed", "kind", msg.Kind, "err", err)
		return
	}
	d.sent.Add(1)
}

// Close stops accepting messages and waits until the queue is drained.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}

// Stats reports delivered, failed and dropped message counts.
func (d *Dispatcher) Stats() (sent, failed, dropped int64) {
	return d.sent.Load(), d.failed.Load(), d.dropped.Load()
}
