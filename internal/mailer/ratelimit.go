// Package mailer provides the outbound email pipeline: a pacing rate limiter
// for provider calls, correlation-scoped structured logging for every pipeline
// stage, and privacy scrubbing of recipient data before it reaches any log sink.
package mailer

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultMinDelay is the minimum gap between two consecutive task dispatches.
// Resend enforces a 2 requests/second cap; 550ms keeps us at ~1.8 req/s with
// headroom for clock skew.
const DefaultMinDelay = 550 * time.Millisecond

// task is one queued unit of work. The limiter holds a transient reference
// until the task is dispatched; the result travels back to the submitting
// caller over done.
type task struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Limiter serializes and paces arbitrary operations so that no more than one
// is started per minDelay interval, preserving submission order.
//
// Tasks submitted to one Limiter execute in strict FIFO submission order.
// Pacing is measured from dispatch start to dispatch start: a slow task does
// not bank rate-limit credit for subsequent fast tasks, and does not throttle
// beyond the minimum gap either. A failing task rejects only its own caller;
// the queue continues with the next task.
//
// There is no cancellation of queued tasks and no per-task timeout: a hung
// task stalls the entire queue. Callers needing bounded latency must impose
// their own deadline inside the function passed to Execute.
//
// Limiters are constructed explicitly and injected; one instance per provider.
// Two instances are fully independent and provide no cross-ordering.
type Limiter struct {
	mu       sync.Mutex
	queue    []*task
	draining bool
	last     time.Time // start time of the most recent dispatch

	minDelay time.Duration
	now      func() time.Time
	sleep    func(time.Duration)
}

// LimiterOption is a functional option for configuring a Limiter.
type LimiterOption func(*Limiter)

// WithMinDelay overrides the minimum inter-dispatch gap.
func WithMinDelay(d time.Duration) LimiterOption {
	return func(l *Limiter) {
		l.minDelay = d
	}
}

// WithNowFunc overrides the clock source. Intended for testing.
func WithNowFunc(fn func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.now = fn
	}
}

// WithSleepFunc overrides the sleep function used to wait out the pacing gap.
// Intended for testing to avoid real delays.
func WithSleepFunc(fn func(time.Duration)) LimiterOption {
	return func(l *Limiter) {
		l.sleep = fn
	}
}

// NewLimiter creates a Limiter with the default 550ms pacing gap.
func NewLimiter(opts ...LimiterOption) *Limiter {
	l := &Limiter{
		minDelay: DefaultMinDelay,
		now:      time.Now,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Execute enqueues fn and blocks until it has been dispatched and completed,
// returning fn's own error. Queuing itself never fails.
//
// If no drain loop is active one is started; submissions while a loop is
// active simply append to the queue and are picked up by the existing loop.
// A new Execute call after the loop has exited starts a fresh loop.
//
// If ctx is cancelled while the task is still queued, Execute returns
// ctx.Err() but the task is NOT withdrawn: it will still be dispatched in
// its turn (its result is discarded). This keeps the FIFO and pacing
// invariants independent of caller lifetimes.
func (l *Limiter) Execute(ctx context.Context, fn func(context.Context) error) error {
	t := &task{
		ctx:  ctx,
		fn:   fn,
		done: make(chan error, 1),
	}

	// Enqueue and claim the drain loop in one critical section so that the
	// check-and-set on draining has no interleaving point ("at most one
	// drain loop" invariant).
	l.mu.Lock()
	l.queue = append(l.queue, t)
	startLoop := !l.draining
	if startLoop {
		l.draining = true
	}
	l.mu.Unlock()

	if startLoop {
		go l.drain()
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of tasks waiting in the queue (excluding any
// task currently dispatched). Exposed for the operations dashboard.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// drain is the single active worker that sequentially dispatches queued tasks
// until the queue is empty. It waits out the pacing gap before each dispatch,
// records the dispatch start time, then runs the task to completion before
// considering the next.
func (l *Limiter) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.draining = false
			l.mu.Unlock()
			return
		}
		t := l.queue[0]
		l.queue = l.queue[1:]
		last := l.last
		l.mu.Unlock()

		if !last.IsZero() {
			if wait := l.minDelay - l.now().Sub(last); wait > 0 {
				l.sleep(wait)
			}
		}

		l.mu.Lock()
		l.last = l.now()
		l.mu.Unlock()

		t.done <- l.runTask(t)
	}
}

// runTask executes a task, converting a panic into an error so a misbehaving
// task cannot kill the drain loop or poison subsequent tasks.
func (l *Limiter) runTask(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rate-limited task panicked: %v", r)
		}
	}()
	return t.fn(t.ctx)
}

// Process runs fn sequentially (not concurrently) over items, each call
// wrapped by l.Execute, collecting results in input order. onProgress, if
// non-nil, is invoked with (completedCount, total) after each item settles,
// including failures.
//
// Process aborts on the first item failure and returns the results collected
// so far alongside the error. Callers wanting partial-failure tolerance must
// catch inside fn. The limiter's drain loop keeps serving other Execute
// callers regardless.
func Process[T, R any](
	ctx context.Context,
	l *Limiter,
	items []T,
	fn func(context.Context, T) (R, error),
	onProgress func(completed, total int),
) ([]R, error) {
	total := len(items)
	results := make([]R, 0, total)

	for i, item := range items {
		var r R
		err := l.Execute(ctx, func(ctx context.Context) error {
			v, fnErr := fn(ctx, item)
			if fnErr != nil {
				return fnErr
			}
			r = v
			return nil
		})

		if onProgress != nil {
			onProgress(i+1, total)
		}
		if err != nil {
			return results, fmt.Errorf("item %d of %d: %w", i+1, total, err)
		}
		results = append(results, r)
	}

	return results, nil
}
