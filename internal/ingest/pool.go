package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"csvquery-backend/internal/domain"
	"csvquery-backend/internal/logging"
	"csvquery-backend/internal/staging"
	"csvquery-backend/internal/store"
)

// ErrPoolClosed is returned by Submit after the pool has been stopped.
var ErrPoolClosed = errors.New("ingest pool closed")

// TaskHandle lets a caller observe the terminal outcome of a submitted
// task. The upload path fires and forgets; tests wait on Done.
type TaskHandle struct {
	done    chan struct{}
	outcome Outcome
}

// Done is closed once the task reaches a terminal state.
func (h *TaskHandle) Done() <-chan struct{} { return h.done }

// Outcome returns the terminal result. Only valid after Done is closed.
func (h *TaskHandle) Outcome() Outcome { return h.outcome }

type queued struct {
	task   *Task
	handle *TaskHandle
}

// Options tune retry and scheduling behavior of the pool.
type Options struct {
	Workers     int
	QueueSize   int
	MaxAttempts int           // total attempts per task
	Backoff     time.Duration // fixed delay between attempts
	TaskTimeout time.Duration // wall-clock ceiling per attempt
}

// Pool runs ingestion tasks on a fixed set of workers, decoupled from the
// request lifecycle by a buffered queue.
type Pool struct {
	staging      *staging.Store
	materializer Materializer
	versions     store.Store
	opts         Options

	queue  chan *queued
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool creates a Pool; call Start before submitting.
func NewPool(st *staging.Store, mat Materializer, versions store.Store, opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 60 * time.Second
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		staging:      st,
		materializer: mat,
		versions:     versions,
		opts:         opts,
		queue:        make(chan *queued, opts.QueueSize),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			for {
				select {
				case <-p.ctx.Done():
					return
				case item := <-p.queue:
					p.run(item)
				}
			}
		}(i)
	}
}

// Stop cancels in-flight work and waits for the workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}

// Submit enqueues a task and returns a handle to its eventual outcome.
func (p *Pool) Submit(t *Task) (*TaskHandle, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	h := &TaskHandle{done: make(chan struct{})}
	select {
	case p.queue <- &queued{task: t, handle: h}:
		return h, nil
	case <-p.ctx.Done():
		return nil, ErrPoolClosed
	default:
		return nil, fmt.Errorf("ingest queue full (%d pending)", p.opts.QueueSize)
	}
}

// run drives a task through its attempt loop:
// Pending -> Running -> {Succeeded, Retrying, FailedPermanently}, with
// Retrying -> Running on backoff expiry.
func (p *Pool) run(item *queued) {
	t := item.task
	ctx := logging.WithLogger(p.ctx, fmt.Sprintf("ingest-%s-%s", t.DatasetID, t.VersionID))

	var lastErr error
	attempt := 0
	for attempt < p.opts.MaxAttempts {
		attempt++

		attemptCtx, cancel := context.WithTimeout(ctx, p.opts.TaskTimeout)
		lastErr = p.runAttempt(attemptCtx, t)
		cancel()

		if lastErr == nil {
			p.finish(ctx, item, Outcome{State: StateSucceeded, Attempts: attempt})
			return
		}

		logging.Errorf(ctx, "ingestion attempt %d/%d failed for %s/%s: %v",
			attempt, p.opts.MaxAttempts, t.UserID, t.DatasetID, lastErr)

		if fatal(lastErr) || attempt >= p.opts.MaxAttempts {
			break
		}

		// Retrying: hold the slot for the fixed backoff, unless shut down.
		select {
		case <-time.After(p.opts.Backoff):
		case <-p.ctx.Done():
			p.finish(ctx, item, Outcome{State: StateFailedPermanently, Attempts: attempt, Err: p.ctx.Err()})
			return
		}
	}

	p.finish(ctx, item, Outcome{State: StateFailedPermanently, Attempts: attempt, Err: lastErr})
}

func (p *Pool) finish(ctx context.Context, item *queued, outcome Outcome) {
	t := item.task

	status := domain.VersionReady
	if outcome.State != StateSucceeded {
		status = domain.VersionFailed
		logging.Errorf(ctx, "ingestion failed permanently for %s/%s after %d attempts: %v",
			t.UserID, t.DatasetID, outcome.Attempts, outcome.Err)
	}

	// Status updates are best effort; the version row itself is immutable.
	statusCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.versions.SetVersionStatus(statusCtx, t.DatasetID, t.VersionID, t.UserID, status); err != nil {
		logging.Warnf(ctx, "failed to record version status %s: %v", status, err)
	}

	item.handle.outcome = outcome
	close(item.handle.done)
}
