// Package tasks runs best-effort background writes.
//
// A Runner starts each job on its own goroutine, retries it with exponential
// backoff and logs the outcome. The returned Task lets callers wait for the
// result or ignore it; a failed task never affects the operation that
// started it.
package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"cipherlog/internal/domain"
)

// ErrClosed is returned by tasks started after the runner was closed.
var ErrClosed = errors.New("task runner closed")

// Config tunes retries. Zero values pick the defaults.
type Config struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff is the delay before the second try; it doubles every retry.
	Backoff time.Duration
	// MaxBackoff caps the delay between tries.
	MaxBackoff time.Duration
}

// FixupAndValidate fills defaults.
func (c *Config) FixupAndValidate() {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
}

// Runner starts and tracks background tasks.
type Runner struct {
	cfg    Config
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRunner returns a Runner. A nil logger discards output.
func NewRunner(cfg Config, log *zap.Logger) *Runner {
	cfg.FixupAndValidate()
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{cfg: cfg, log: log.Named("tasks"), ctx: ctx, cancel: cancel}
}

// Task is the handle of one background job. It implements domain.Pending.
type Task struct {
	name string
	done chan struct{}
	err  error
}

// Name returns the task name given to Go.
func (t *Task) Name() string { return t.name }

// Done is closed when the task has finished, successfully or not.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the final error, or nil while the task is still running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Failed returns an already finished task carrying err. It stands in for a
// background write that could not even be prepared.
func Failed(name string, err error) *Task {
	t := &Task{name: name, done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

// Go runs fn in the background until it succeeds, the attempts run out or
// the runner is closed.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) *Task {
	t := &Task{name: name, done: make(chan struct{})}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		t.err = ErrClosed
		close(t.done)
		return t
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer close(t.done)
		t.err = r.run(name, fn)
	}()
	return t
}

func (r *Runner) run(name string, fn func(ctx context.Context) error) error {
	backoff := r.cfg.Backoff
	var err error
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		if err = fn(r.ctx); err == nil {
			if attempt > 1 {
				r.log.Info("task succeeded after retry", zap.String("task", name), zap.Int("attempt", attempt))
			}
			return nil
		}
		if attempt == r.cfg.Attempts {
			break
		}
		r.log.Warn("task failed, retrying",
			zap.String("task", name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-r.ctx.Done():
			err = errors.Join(err, ErrClosed)
			r.log.Warn("task abandoned", zap.String("task", name), zap.Error(err))
			return err
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, r.cfg.MaxBackoff)
	}
	r.log.Error("task failed", zap.String("task", name), zap.Int("attempts", r.cfg.Attempts), zap.Error(err))
	return err
}

// Close cancels running tasks and waits for them to return.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

// Drain waits for running tasks to finish without cancelling them, up to ctx.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ domain.Pending = (*Task)(nil)
