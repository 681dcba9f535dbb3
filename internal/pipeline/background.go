package pipeline

import (
	"context"
	"log/slog"
	"sync"
)

// Executor runs one request; *Runner satisfies it.
type Executor interface {
	Run(ctx context.Context, req Request) (*Outcome, error)
}

// Background runs at most one request at a time off the caller's goroutine.
type Background struct {
	exec Executor
	base context.Context
	log  *slog.Logger

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup

	// OnDone, when set, is called after every background run.
	OnDone func(out *Outcome, err error)
}

// NewBackground creates a Background whose runs inherit base, so cancelling
// base cancels the in-flight data fetch.
func NewBackground(base context.Context, exec Executor, logger *slog.Logger) *Background {
	if logger == nil {
		logger = slog.Default()
	}
	return &Background{exec: exec, base: base, log: logger.With(slog.String("component", "background"))}
}

// TryStart launches req unless a run is already in flight; it reports
// whether the run was started.
func (b *Background) TryStart(req Request) bool {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return false
	}
	b.running = true
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		out, err := b.exec.Run(b.base, req)
		if err != nil {
			b.log.Error("background run failed", slog.String("mode", string(req.Mode)), slog.Any("err", err))
		}
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
		if b.OnDone != nil {
			b.OnDone(out, err)
		}
	}()
	return true
}

// Running reports whether a run is in flight.
func (b *Background) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Wait blocks until the in-flight run, if any, has finished.
func (b *Background) Wait() { b.wg.Wait() }
