// Package periodic runs a task on a fixed interval with an out-of-band
// trigger, adapted from scionproto-scion's go/lib/periodic/periodic.go
// Ticker/Task/Runner. It backs the protocol engine's originate-broadcast
// task, which must fire both on its configured interval and whenever the
// neighbor set changes.
package periodic

import (
	"context"
	"time"
)

// Ticker abstracts the wakeup source driving a Runner.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type defaultTicker struct {
	t *time.Ticker
}

func (d *defaultTicker) Chan() <-chan time.Time { return d.t.C }
func (d *defaultTicker) Stop()                  { d.t.Stop() }

// NewTicker builds a Ticker firing every d.
func NewTicker(d time.Duration) Ticker {
	return &defaultTicker{t: time.NewTicker(d)}
}

// Task is the unit of work a Runner executes on each tick or trigger.
type Task interface {
	Run(ctx context.Context)
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func(ctx context.Context)

func (f TaskFunc) Run(ctx context.Context) { f(ctx) }

// Runner drives a Task on a Ticker, plus an out-of-band TriggerRun that
// runs the task immediately without resetting the ticker's periodicity.
type Runner struct {
	task    Task
	ticker  Ticker
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	stop         chan struct{}
	loopFinished chan struct{}
	trigger      chan struct{}
}

// Start builds and runs a Runner. timeout bounds each individual task
// execution; pass 0 for no bound.
func Start(ctx context.Context, task Task, ticker Ticker, timeout time.Duration) *Runner {
	runCtx, cancel := context.WithCancel(ctx)
	r := &Runner{
		task:         task,
		ticker:       ticker,
		timeout:      timeout,
		ctx:          runCtx,
		cancel:       cancel,
		stop:         make(chan struct{}),
		loopFinished: make(chan struct{}),
		trigger:      make(chan struct{}),
	}
	go r.runLoop()
	return r
}

// TriggerRun runs the task once, immediately, outside the normal
// periodicity. It does not reset the ticker's schedule. Blocks until the
// signal is accepted or the Runner is stopped.
func (r *Runner) TriggerRun() {
	select {
	case r.trigger <- struct{}{}:
	case <-r.stop:
	}
}

// Stop halts the ticker and waits for any in-flight task execution to
// finish.
func (r *Runner) Stop() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	<-r.loopFinished
}

// Kill is like Stop but also cancels the context passed to the task, for
// use during shutdown when an in-flight task execution should abort early.
func (r *Runner) Kill() {
	r.cancel()
	r.Stop()
}

func (r *Runner) runLoop() {
	defer close(r.loopFinished)
	defer r.ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-r.ticker.Chan():
			r.onTick()
		case <-r.trigger:
			r.onTick()
		}
	}
}

func (r *Runner) onTick() {
	select {
	case <-r.stop:
		return
	default:
	}
	ctx := r.ctx
	var cancel context.CancelFunc
	if r.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	r.task.Run(ctx)
}
