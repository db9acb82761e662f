// SPDX-License-Identifier: MIT
/*
Package cycle is the fixed-period scheduler that drives cycle-based sources.

The runner goroutine is locked to its OS thread and calls every task once per
period, in registration order. A cycle whose work overruns the period is
counted as late; missed ticks are not replayed.
*/
package cycle

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	applog "rtfft/internal/log"
)

// Task is work executed once per cycle on the real-time thread.
type Task interface {
	Cycle()
}

// TaskFunc adapts a function to Task.
type TaskFunc func()

func (f TaskFunc) Cycle() { f() }

// Stats is a copy of the runner counters.
type Stats struct {
	Cycles  uint64
	Late    uint64
	MaxWork time.Duration
}

// Runner executes tasks at a fixed period.
type Runner struct {
	period time.Duration
	tasks  []Task

	cycles  atomic.Uint64
	late    atomic.Uint64
	maxWork atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates a runner with the given period.
func NewRunner(period time.Duration) (*Runner, error) {
	if period <= 0 {
		return nil, errors.New("cycle period must be positive")
	}
	return &Runner{period: period}, nil
}

// Add registers a task. Tasks must be added before Start.
func (r *Runner) Add(t Task) {
	r.tasks = append(r.tasks, t)
}

// Period returns the cycle period.
func (r *Runner) Period() time.Duration {
	return r.period
}

// Start launches the cycle goroutine. It runs until ctx is cancelled or Stop
// is called.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		applog.Warnf("Cycle: Start called but already running")
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx, r.done)
	applog.Infof("Cycle: Runner started (period: %s, tasks: %d)", r.period, len(r.tasks))
}

func (r *Runner) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.step()
		}
	}
}

// step runs one cycle.
func (r *Runner) step() {
	start := time.Now()
	for _, t := range r.tasks {
		t.Cycle()
	}
	work := time.Since(start)

	r.cycles.Add(1)
	if work > r.period {
		r.late.Add(1)
	}
	if w := int64(work); w > r.maxWork.Load() {
		r.maxWork.Store(w)
	}
}

// Stop cancels the runner and waits for the current cycle to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done

	s := r.Stats()
	applog.Infof("Cycle: Runner stopped (cycles: %d, late: %d, max work: %s)", s.Cycles, s.Late, s.MaxWork)
}

// Stats returns the runner counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Cycles:  r.cycles.Load(),
		Late:    r.late.Load(),
		MaxWork: time.Duration(r.maxWork.Load()),
	}
}
