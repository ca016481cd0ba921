package dispatch

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newTestDispatcher(t *testing.T, workers, queue int) *Dispatcher {
	t.Helper()
	d := Config{
		Log:       slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn})),
		Workers:   workers,
		QueueSize: queue,
	}.New()
	t.Cleanup(d.Close)
	return d
}

// drainUntil drains d until at least want callbacks ran or the deadline
// passes.
func drainUntil(t *testing.T, d *Dispatcher, want int) int {
	t.Helper()
	got := 0
	deadline := time.Now().Add(5 * time.Second)
	for got < want {
		got += d.Drain()
		if got >= want {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d completions, got %d", want, got)
		}
		time.Sleep(time.Millisecond)
	}
	return got
}

func TestEveryJobCompletesOnce(t *testing.T) {
	d := newTestDispatcher(t, 4, 512)

	const jobs = 300
	calls := make([]int, jobs)
	for i := range jobs {
		err := Submit(d, func() int { return i * i }, func(v int, err error) {
			if err != nil {
				t.Errorf("job %d: unexpected error %v", i, err)
			}
			if v != i*i {
				t.Errorf("job %d: expected %d, got %d", i, i*i, v)
			}
			calls[i]++
		})
		if err != nil {
			t.Fatalf("submit job %d: %v", i, err)
		}
	}
	drainUntil(t, d, jobs)
	time.Sleep(20 * time.Millisecond)
	if extra := d.Drain(); extra != 0 {
		t.Fatalf("expected no further completions, got %d", extra)
	}
	for i, c := range calls {
		if c != 1 {
			t.Fatalf("job %d: expected callback to run once, ran %d times", i, c)
		}
	}
	if s := d.Stats(); s.Submitted != jobs || s.Completed != jobs || s.Failed != 0 || s.Pending != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestDrainDoesNotRunCallbacksEarly(t *testing.T) {
	d := newTestDispatcher(t, 1, 4)
	ran := false
	if err := Submit(d, func() struct{} { return struct{}{} }, func(struct{}, error) { ran = true }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for d.Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("job never completed")
		}
		time.Sleep(time.Millisecond)
	}
	if ran {
		t.Fatalf("expected callback to wait for Drain")
	}
	if n := d.Drain(); n != 1 || !ran {
		t.Fatalf("expected Drain to run 1 callback, ran %d (ran=%v)", n, ran)
	}
}

func TestPanicDeliveredAsError(t *testing.T) {
	d := newTestDispatcher(t, 2, 8)
	var got error
	err := Submit(d, func() string { panic("boom") }, func(v string, err error) {
		if v != "" {
			t.Errorf("expected zero value result, got %q", v)
		}
		got = err
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	drainUntil(t, d, 1)

	var perr *PanicError
	if !errors.As(got, &perr) {
		t.Fatalf("expected *PanicError, got %v", got)
	}
	if perr.Value != "boom" || len(perr.Stack) == 0 {
		t.Fatalf("unexpected panic error %+v", perr)
	}
	if s := d.Stats(); s.Failed != 1 || s.Completed != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}

	// The worker that recovered must still be able to run jobs.
	ok := false
	if err := Submit(d, func() bool { return true }, func(v bool, _ error) { ok = v }); err != nil {
		t.Fatalf("submit after panic: %v", err)
	}
	drainUntil(t, d, 1)
	if !ok {
		t.Fatalf("expected job after panic to complete")
	}
}

func TestCompletionOrder(t *testing.T) {
	d := newTestDispatcher(t, 2, 8)
	release := make(chan struct{})
	var order []string

	if err := Submit(d, func() string { <-release; return "slow" }, func(v string, _ error) { order = append(order, v) }); err != nil {
		t.Fatalf("submit slow: %v", err)
	}
	if err := Submit(d, func() string { return "fast" }, func(v string, _ error) { order = append(order, v) }); err != nil {
		t.Fatalf("submit fast: %v", err)
	}
	drainUntil(t, d, 1)
	close(release)
	drainUntil(t, d, 1)

	if len(order) != 2 || order[0] != "fast" || order[1] != "slow" {
		t.Fatalf("expected completion order [fast slow], got %v", order)
	}
}

func TestQueueFull(t *testing.T) {
	d := newTestDispatcher(t, 1, 1)
	started, release := make(chan struct{}, 1), make(chan struct{})
	block := func() int {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return 0
	}
	if err := Submit(d, block, func(int, error) {}); err != nil {
		t.Fatalf("submit running job: %v", err)
	}
	<-started
	if err := Submit(d, block, func(int, error) {}); err != nil {
		t.Fatalf("submit queued job: %v", err)
	}
	err := Submit(d, block, func(int, error) { t.Errorf("rejected job must not complete") })
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	close(release)
	drainUntil(t, d, 2)
	if s := d.Stats(); s.Rejected != 1 || s.Submitted != 2 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestCloseWaitsAndKeepsCompletions(t *testing.T) {
	d := newTestDispatcher(t, 2, 16)
	var mu sync.Mutex
	done := 0
	for range 10 {
		err := Submit(d, func() int {
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			done++
			mu.Unlock()
			return 1
		}, func(int, error) {})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	d.Close()
	mu.Lock()
	if done != 10 {
		t.Fatalf("expected Close to wait for all 10 jobs, %d finished", done)
	}
	mu.Unlock()
	if n := d.Drain(); n != 10 {
		t.Fatalf("expected 10 completions after Close, got %d", n)
	}
	if err := Submit(d, func() int { return 0 }, func(int, error) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	d.Close()
}

func TestDrainFromCallback(t *testing.T) {
	d := newTestDispatcher(t, 1, 8)
	second := false
	err := Submit(d, func() int { return 1 }, func(int, error) {
		if err := Submit(d, func() int { return 2 }, func(int, error) { second = true }); err != nil {
			t.Errorf("submit from callback: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	drainUntil(t, d, 2)
	if !second {
		t.Fatalf("expected job submitted from a callback to complete")
	}
}

func TestDrainKeepsCallbacksAfterPanic(t *testing.T) {
	d := newTestDispatcher(t, 1, 8)

	var order []int
	for i := range 3 {
		err := Submit(d, func() int { return i }, func(v int, err error) {
			order = append(order, v)
			if v == 0 {
				panic("callback failed")
			}
		})
		if err != nil {
			t.Fatalf("submit job %d: %v", i, err)
		}
	}
	d.Close()

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected the callback panic to reach the caller of Drain")
			}
		}()
		d.Drain()
	}()
	if p := d.Pending(); p != 2 {
		t.Fatalf("expected 2 completions to stay queued, got %d", p)
	}
	if n := d.Drain(); n != 2 {
		t.Fatalf("expected 2 callbacks to run after the panic, got %d", n)
	}
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("expected callbacks to run once each in order [0 1 2], got %v", order)
	}
	if n := d.Drain(); n != 0 {
		t.Fatalf("expected no further completions, got %d", n)
	}
}
