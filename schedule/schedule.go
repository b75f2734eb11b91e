// Package schedule runs cancellable repeating tasks.
package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Func is called on every tick. Returning false ends the task.
type Func func(ctx context.Context) bool

// Lease owns one repeating task. The zero value is not usable; leases are
// created by Every.
type Lease struct {
	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// Every calls fn once per interval until fn returns false, ctx is cancelled
// or the lease is stopped. The first call happens one interval after Every
// returns.
func Every(ctx context.Context, interval time.Duration, fn Func) *Lease {
	ctx, cancel := context.WithCancel(ctx)
	l := &Lease{cancel: cancel, done: make(chan struct{})}
	if interval <= 0 {
		l.Stop()
		close(l.done)
		return l
	}
	go l.run(ctx, interval, fn)
	return l
}

func (l *Lease) run(ctx context.Context, interval time.Duration, fn Func) {
	defer close(l.done)
	defer l.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if l.stopped.Load() {
				return
			}
			if !fn(ctx) {
				return
			}
		}
	}
}

// Stop ends the task. No call to fn begins after Stop returns, although a
// call already in progress may finish. Stop may be called from within fn
// and more than once.
func (l *Lease) Stop() {
	l.once.Do(func() {
		l.stopped.Store(true)
		l.cancel()
	})
}

// Stopped reports whether the lease has been stopped, either explicitly or
// because its task ended.
func (l *Lease) Stopped() bool {
	return l.stopped.Load()
}

// Wait blocks until the task goroutine has exited. It must not be called
// from within fn.
func (l *Lease) Wait() {
	<-l.done
}

// Done is closed when the task goroutine has exited.
func (l *Lease) Done() <-chan struct{} {
	return l.done
}
