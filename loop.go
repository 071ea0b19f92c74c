package scriptloader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Loop serializes every record mutation onto the goroutine that drains it.
// Fetches run on their own goroutines and post their completions back, so
// callbacks never run concurrently with each other.
type Loop struct {
	ctx     context.Context
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	pending atomic.Int64
	errs    []error
}

// NewLoop creates a loop whose fetch work observes ctx.
func NewLoop(ctx context.Context) *Loop {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Loop{
		ctx:  ctx,
		wake: make(chan struct{}, 1),
	}
}

// Go runs work on a new goroutine and queues done with its result.
func (l *Loop) Go(work func(ctx context.Context) ([]byte, error), done func([]byte, error)) {
	l.pending.Add(1)
	go func() {
		payload, err := work(l.ctx)
		l.enqueue(func() {
			l.pending.Add(-1)
			done(payload, err)
		})
	}()
}

// Post queues fn to run on the draining goroutine.
func (l *Loop) Post(fn func()) {
	l.pending.Add(1)
	l.enqueue(func() {
		l.pending.Add(-1)
		fn()
	})
}

// Pending returns the number of fetches and posted callbacks not yet run.
func (l *Loop) Pending() int {
	return int(l.pending.Load())
}

// Raise records an error to be returned by the next Wait.
func (l *Loop) Raise(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

func (l *Loop) enqueue(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

// Flush runs queued callbacks without waiting for in-flight fetches.
func (l *Loop) Flush() {
	for fn := l.next(); fn != nil; fn = l.next() {
		fn()
	}
}

// Wait drains the loop until nothing is pending, then returns every error
// raised since the previous Wait, joined.
func (l *Loop) Wait(ctx context.Context) error {
	for {
		l.Flush()
		if l.pending.Load() == 0 {
			return l.takeErrors()
		}
		select {
		case <-l.wake:
		case <-ctx.Done():
			return errors.Join(ctx.Err(), l.takeErrors())
		}
	}
}

func (l *Loop) takeErrors() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err := errors.Join(l.errs...)
	l.errs = nil
	return err
}
