// Package clock provides the job master's notion of time and its single
// periodic-task driver, so that tests can substitute a fake clock without
// touching wall-clock time.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock returns monotonic milliseconds since an arbitrary epoch.
type Clock interface {
	NowMS() int64
}

// Real is the production Clock backed by time.Now.
type Real struct{}

// NowMS returns the current wall-clock time in milliseconds.
func (Real) NowMS() int64 {
	return time.Now().UnixMilli()
}

// Cancel stops a scheduled task and waits for any in-flight invocation to
// return.
type Cancel func()

// Scheduler runs closures on a fixed interval with at-most-one
// concurrency per schedule: the next tick never starts before the previous
// invocation has returned. Modeled on the ticker/stopCh/select shape shared
// by the heartbeat and due-task polling loops this codebase is built from.
type Scheduler struct {
	clock Clock
}

// NewScheduler constructs a Scheduler bound to clock.
func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// Schedule starts invoking fn every interval until the returned Cancel is
// called. fn receives the current NowMS() reading for that tick.
func (s *Scheduler) Schedule(interval time.Duration, fn func(ctx context.Context, nowMS int64)) Cancel {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx, s.clock.NowMS())
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
