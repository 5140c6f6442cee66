// Package synthgate serializes synthesis calls against a single-concurrency
// speech backend.
//
// The backend (one accelerator, one model instance) degrades badly under
// concurrent calls: every request but the first times out. The gate admits
// jobs one at a time through a weighted semaphore of capacity 1, in strict
// submission order, and applies each job's timeout from the moment its
// backend call starts rather than from submission, so queue wait never eats
// into a job's execution window.
//
// The gate never retries; retry policy belongs to the caller.
package synthgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/soulcast-ai/soulcast/pkg/provider/synth"
)

const (
	// defaultTimeout bounds a single backend call once admitted.
	defaultTimeout = 30 * time.Second

	// defaultQueueDepth is the buffer of the submission queue. Submissions
	// beyond it block, which backpressures the orchestrator.
	defaultQueueDepth = 64
)

// ErrTimeout marks a job whose backend call exceeded the per-job window.
var ErrTimeout = errors.New("synthgate: synthesis timed out")

// ErrClosed is returned for submissions after Close.
var ErrClosed = errors.New("synthgate: gate is closed")

// Job is one synthesis request bound to its owning bubble.
type Job struct {
	GroupID    string
	SentenceID int
	Request    synth.Request
}

// Outcome is the resolution of a submitted Job. Exactly one of Result and
// Err is set. QueueWait and ExecDuration feed metrics.
type Outcome struct {
	Job          Job
	Result       *synth.Result
	Err          error
	QueueWait    time.Duration
	ExecDuration time.Duration
}

// Option is a functional option for configuring a Gate.
type Option func(*Gate)

// WithTimeout sets the per-job execution timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) { g.timeout = d }
}

// WithQueueDepth sets the submission queue buffer. Defaults to 64.
func WithQueueDepth(n int) Option {
	return func(g *Gate) { g.queueDepth = n }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// Gate admits jobs to a synthesis backend one at a time. Safe for concurrent
// use by multiple turns sharing the same backend instance.
type Gate struct {
	backend    synth.Synthesizer
	timeout    time.Duration
	queueDepth int
	logger     *slog.Logger

	sem  *semaphore.Weighted
	jobs chan submission

	mu     sync.Mutex
	closed bool

	// wg tracks the dispatcher and all executing jobs so Close can wait for
	// in-flight work to resolve.
	wg sync.WaitGroup
}

// submission pairs a job with its caller-facing outcome channel and the
// context that cancels it while queued.
type submission struct {
	ctx       context.Context
	job       Job
	out       chan Outcome
	submitted time.Time
}

// New creates a Gate in front of backend and starts its dispatcher.
func New(backend synth.Synthesizer, opts ...Option) *Gate {
	g := &Gate{
		backend:    backend,
		timeout:    defaultTimeout,
		queueDepth: defaultQueueDepth,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	g.sem = semaphore.NewWeighted(1)
	g.jobs = make(chan submission, g.queueDepth)

	g.wg.Add(1)
	go g.dispatch()
	return g
}

// Submit queues a job and returns a channel that receives exactly one
// Outcome. Cancelling ctx before the job is admitted resolves it with the
// context error without calling the backend; after admission the backend
// call observes the cancellation through its own context.
func (g *Gate) Submit(ctx context.Context, job Job) <-chan Outcome {
	out := make(chan Outcome, 1)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		out <- Outcome{Job: job, Err: ErrClosed}
		return out
	}
	// Enqueue under the lock so submission order is the queue order.
	g.jobs <- submission{ctx: ctx, job: job, out: out, submitted: time.Now()}
	g.mu.Unlock()

	return out
}

// Close stops accepting submissions and waits for queued and in-flight jobs
// to resolve.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	close(g.jobs)
	g.mu.Unlock()

	g.wg.Wait()
}

// dispatch admits queued submissions in FIFO order. Only this goroutine
// calls Acquire, so the admission order is exactly the submission order.
func (g *Gate) dispatch() {
	defer g.wg.Done()

	for sub := range g.jobs {
		if err := g.sem.Acquire(sub.ctx, 1); err != nil {
			// Cancelled while queued: resolve without touching the backend.
			sub.out <- Outcome{
				Job:       sub.job,
				Err:       fmt.Errorf("synthgate: cancelled while queued: %w", err),
				QueueWait: time.Since(sub.submitted),
			}
			continue
		}

		g.wg.Add(1)
		go g.execute(sub)
	}
}

// execute runs one admitted job against the backend and releases the
// admission slot when done.
func (g *Gate) execute(sub submission) {
	defer g.wg.Done()
	defer g.sem.Release(1)

	wait := time.Since(sub.submitted)

	ctx := sub.ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(sub.ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := g.backend.Synthesize(ctx, sub.job.Request)
	elapsed := time.Since(start)

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && sub.ctx.Err() == nil {
		err = fmt.Errorf("%w after %s: %v", ErrTimeout, g.timeout, err)
	}
	if err != nil {
		g.logger.Warn("synthesis job failed",
			"group_id", sub.job.GroupID,
			"sentence_id", sub.job.SentenceID,
			"queue_wait", wait,
			"exec_duration", elapsed,
			"error", err,
		)
	}

	sub.out <- Outcome{
		Job:          sub.job,
		Result:       res,
		Err:          err,
		QueueWait:    wait,
		ExecDuration: elapsed,
	}
}
