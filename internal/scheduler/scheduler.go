// Package scheduler starts forward tests on a cron schedule.
package scheduler

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"forwardtest/config"
	"forwardtest/internal/pipeline"
)

// Starter launches a background run; *pipeline.Background satisfies it.
type Starter interface {
	TryStart(req pipeline.Request) bool
}

// StrategyLoader returns the strategy a scheduled run uses.
type StrategyLoader func() (config.Strategy, error)

// Scheduler owns the cron and the forward-test job.
type Scheduler struct {
	Cron    *cron.Cron
	starter Starter
	load    StrategyLoader

	fired atomic.Int64
}

// New creates a Scheduler with a seconds-resolution cron.
func New(starter Starter, load StrategyLoader) *Scheduler {
	return &Scheduler{
		Cron:    cron.New(cron.WithSeconds()),
		starter: starter,
		load:    load,
	}
}

// RegisterForward adds the forward-test job. An empty spec registers nothing.
func (s *Scheduler) RegisterForward(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := s.Cron.AddFunc(spec, s.forwardTask); err != nil {
		return fmt.Errorf("register forward task %q: %w", spec, err)
	}
	log.Printf("[scheduler] forward test scheduled at %q", spec)
	return nil
}

// Start starts the cron.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Printf("[scheduler] started (%d jobs)", len(s.Cron.Entries()))
}

// Stop stops the cron and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Printf("[scheduler] stopped")
}

// Fired returns how many jobs actually started a run.
func (s *Scheduler) Fired() int64 { return s.fired.Load() }

// RunForwardNow runs the forward job immediately.
func (s *Scheduler) RunForwardNow() { s.forwardTask() }

func (s *Scheduler) forwardTask() {
	st, err := s.load()
	if err != nil {
		log.Printf("[scheduler] load strategy: %v", err)
		return
	}
	if !s.starter.TryStart(pipeline.Request{Mode: pipeline.ModeForward, Strategy: st}) {
		log.Printf("[scheduler] forward test still running, skipping")
		return
	}
	s.fired.Add(1)
	log.Printf("[scheduler] forward test started")
}
