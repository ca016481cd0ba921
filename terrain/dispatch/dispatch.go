// Package dispatch runs producer functions on a bounded pool of background
// workers and hands their results back to a single owning goroutine.
//
// Producers run concurrently and must not touch state that is not safe for
// concurrent use. Their completion callbacks are queued in completion order
// and only run when the owner calls Dispatcher.Drain, which is where results
// may be applied to state owned by that goroutine.
package dispatch

import (
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
)

var (
	// ErrClosed is returned when submitting a job to a Dispatcher that was
	// closed.
	ErrClosed = errors.New("dispatch: dispatcher closed")
	// ErrQueueFull is returned when a job could not be submitted because all
	// workers are busy and the queue is full. The job was not accepted and
	// its callback will never run; callers may retry later.
	ErrQueueFull = errors.New("dispatch: job queue full")
)

// PanicError is passed to the completion callback of a job whose producer
// panicked.
type PanicError struct {
	// Job is the ID the job was assigned when it was submitted.
	Job uuid.UUID
	// Value is the value the producer panicked with.
	Value any
	// Stack is the stack trace of the producer at the time of the panic.
	Stack []byte
}

// Error returns the job ID and the value the producer panicked with.
func (e *PanicError) Error() string {
	return fmt.Sprintf("dispatch: job %v panicked: %v", e.Job, e.Value)
}

// Dispatcher runs jobs on a bounded worker pool and queues their completions
// until they are drained. Submit may be called from any goroutine, but Drain
// should only ever be called by the goroutine owning the state the callbacks
// mutate. A Dispatcher must be created using Config.New.
type Dispatcher struct {
	conf Config
	pool pond.Pool

	mu          sync.Mutex
	completions []func()
	spare       []func()

	closeOnce sync.Once
	closed    atomic.Bool

	submitted, completed, failed, rejected atomic.Uint64

	// saturation counts how often jobs were rejected because the queue was
	// full. lastSaturationLog throttles the warnings emitted for it.
	saturation        atomic.Uint64
	lastSaturationLog atomic.Uint64
}

// Stats is a snapshot of the counters of a Dispatcher.
type Stats struct {
	// Submitted is the amount of jobs accepted by Submit.
	Submitted uint64
	// Completed is the amount of jobs whose producer finished, including
	// those that panicked.
	Completed uint64
	// Failed is the amount of jobs whose producer panicked.
	Failed uint64
	// Rejected is the amount of jobs refused with ErrQueueFull.
	Rejected uint64
	// Pending is the amount of completions waiting to be drained.
	Pending int
	// Running is the amount of workers currently running.
	Running int64
	// Waiting is the amount of jobs waiting for a worker.
	Waiting uint64
}

// Submit runs produce on a background worker and queues onComplete to be
// called with its result during a later call to Drain. If produce panics,
// onComplete receives the zero value of T and a *PanicError. Submit never
// blocks: it returns ErrQueueFull if the job cannot be queued and ErrClosed
// if d was closed. A job accepted by Submit always completes exactly once.
func Submit[T any](d *Dispatcher, produce func() T, onComplete func(T, error)) error {
	if d.closed.Load() {
		return ErrClosed
	}
	id := uuid.New()
	err := d.pool.Go(func() {
		res, err := run(d, id, produce)
		d.complete(func() { onComplete(res, err) }, err)
	})
	switch {
	case err == nil:
		d.submitted.Add(1)
		return nil
	case errors.Is(err, pond.ErrQueueFull):
		d.rejected.Add(1)
		d.handleBackpressure()
		return ErrQueueFull
	case errors.Is(err, pond.ErrPoolStopped):
		return ErrClosed
	}
	return fmt.Errorf("dispatch: submit job: %w", err)
}

// run calls produce, converting a panic into a *PanicError so that the
// worker survives and the job still completes.
func run[T any](d *Dispatcher, id uuid.UUID, produce func() T) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Job: id, Value: r, Stack: debug.Stack()}
			d.conf.Log.Error("dispatch job: panic", "job", id, "error", fmt.Sprint(r))
		}
	}()
	return produce(), nil
}

// complete queues a completion callback to be run by Drain.
func (d *Dispatcher) complete(f func(), err error) {
	if err != nil {
		d.failed.Add(1)
	}
	d.mu.Lock()
	d.completions = append(d.completions, f)
	d.mu.Unlock()
	d.completed.Add(1)
}

// Drain runs all completion callbacks queued at the time of the call on the
// calling goroutine, in the order their jobs completed, and returns how many
// were run. Drain never waits for jobs that are still running. Callbacks
// completing while Drain runs are left for the next call. If a callback
// panics, the panic is passed on and the callbacks after it stay queued for
// the next call to Drain.
func (d *Dispatcher) Drain() int {
	d.mu.Lock()
	batch := d.completions
	d.completions, d.spare = d.spare[:0], nil
	d.mu.Unlock()

	next := 0
	defer func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if rest := batch[next:]; len(rest) > 0 {
			d.completions = append(slices.Clone(rest), d.completions...)
			return
		}
		d.spare = batch[:0]
	}()
	for next < len(batch) {
		f := batch[next]
		batch[next] = nil
		next++
		f()
	}
	return len(batch)
}

// Pending returns the amount of completions waiting to be drained.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.completions)
}

// Stats returns a snapshot of the counters of d.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Submitted: d.submitted.Load(),
		Completed: d.completed.Load(),
		Failed:    d.failed.Load(),
		Rejected:  d.rejected.Load(),
		Pending:   d.Pending(),
		Running:   d.pool.RunningWorkers(),
		Waiting:   d.pool.WaitingTasks(),
	}
}

// Close stops d from accepting new jobs and waits for all running and queued
// jobs to finish. Their completions remain queued and may still be drained.
// Close is safe to call more than once.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		d.pool.StopAndWait()
	})
}

// handleBackpressure counts a rejected job and emits a throttled warning so
// that operators can tune the worker count and queue size.
func (d *Dispatcher) handleBackpressure() {
	count := d.saturation.Add(1)
	now := uint64(time.Now().UnixNano())
	last := d.lastSaturationLog.Load()

	if last != 0 && time.Duration(now-last) < time.Minute {
		return
	}
	if !d.lastSaturationLog.CompareAndSwap(last, now) {
		return
	}
	d.conf.Log.Warn(
		"dispatcher queue saturated: job backlog detected.",
		"rejected_jobs", count,
		"queue_size", d.conf.QueueSize,
		"workers", d.conf.Workers,
	)
}
