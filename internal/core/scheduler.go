package core

import (
	"context"
	"time"

	"github.com/devskill-org/p1budget/internal/corelog"
)

// Scheduler drives the Registry's Tick at a configured cadence. One tick's
// worth of work — including any blocking producer/consumer I/O — runs
// before the next deadline is computed; missed deadlines are skipped rather
// than caught up in a burst.
type Scheduler struct {
	reg      *Registry
	interval time.Duration
	log      *corelog.Logger
	tickRec  TickRecorder
}

// TickRecorder receives tick-level observations. Satisfied by
// internal/metrics.Metrics; left nil, nothing is recorded beyond logging.
type TickRecorder interface {
	ObserveTick(d time.Duration)
	SetActivePolicy(index int)
}

// NewScheduler constructs a Scheduler driving reg at the given interval
// (default 1s if interval <= 0).
func NewScheduler(reg *Registry, interval time.Duration, log *corelog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{reg: reg, interval: interval, log: log}
}

// SetTickRecorder attaches a metrics recorder for tick duration and active
// policy.
func (s *Scheduler) SetTickRecorder(rec TickRecorder) {
	s.tickRec = rec
}

// Run drives the control loop until ctx is cancelled. Cancellation is only
// observed between ticks, at the deadline sleep — a tick already in
// progress always runs to completion.
func (s *Scheduler) Run(ctx context.Context) {
	t0 := time.Now()
	for {
		start := time.Now()
		changedTo, changed := s.reg.Tick()
		if changed {
			s.log.Infof("Activating policy %s", changedTo)
		}
		t1 := time.Now()

		if s.tickRec != nil {
			s.tickRec.ObserveTick(t1.Sub(start))
			s.tickRec.SetActivePolicy(s.reg.GetActivePolicy())
		}

		if t1.After(t0.Add(s.interval)) {
			s.log.Warnf("tick finished late: took %s", t1.Sub(start))
			t0 = t1
		} else {
			t0 = t0.Add(s.interval)
		}

		sleep := time.Until(t0)
		if sleep < 0 {
			sleep = 0
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
