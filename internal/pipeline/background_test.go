package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forwardtest/internal/logger"
)

type blockingExec struct {
	started chan struct{}
	release chan struct{}
	err     error
}

func (e *blockingExec) Run(ctx context.Context, req Request) (*Outcome, error) {
	e.started <- struct{}{}
	<-e.release
	if e.err != nil {
		return nil, e.err
	}
	return &Outcome{Mode: req.Mode}, nil
}

func TestBackground_SingleFlight(t *testing.T) {
	exec := &blockingExec{started: make(chan struct{}, 1), release: make(chan struct{})}
	bg := NewBackground(context.Background(), exec, logger.Discard())

	done := make(chan *Outcome, 1)
	bg.OnDone = func(out *Outcome, err error) { done <- out }

	require.True(t, bg.TryStart(Request{Mode: ModeForward}))
	<-exec.started
	assert.True(t, bg.Running())
	assert.False(t, bg.TryStart(Request{Mode: ModeForward}))

	close(exec.release)
	out := <-done
	bg.Wait()

	require.NotNil(t, out)
	assert.Equal(t, ModeForward, out.Mode)
	assert.False(t, bg.Running())
}

func TestBackground_RestartsAfterFailure(t *testing.T) {
	exec := &blockingExec{started: make(chan struct{}, 1), release: make(chan struct{}), err: errors.New("boom")}
	close(exec.release)
	bg := NewBackground(context.Background(), exec, logger.Discard())

	errs := make(chan error, 2)
	bg.OnDone = func(out *Outcome, err error) { errs <- err }

	require.True(t, bg.TryStart(Request{}))
	<-exec.started
	assert.EqualError(t, <-errs, "boom")
	bg.Wait()

	require.True(t, bg.TryStart(Request{}))
	<-exec.started
	assert.Error(t, <-errs)
	bg.Wait()
}
