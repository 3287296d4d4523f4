// Package clock provides an injectable time source for timers and tickers.
package clock

import (
	"context"
	"sync/atomic"
	"time"
)

// Timer is a pending one-shot or periodic callback.
type Timer interface {
	// Stop cancels the timer. It returns false if the timer had already
	// fired (one-shot) or been stopped.
	Stop() bool
}

// Clock schedules callbacks against a time source.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f once, on its own goroutine, after d.
	AfterFunc(d time.Duration, f func()) Timer
	// Every calls f every d until the returned Timer is stopped.
	Every(d time.Duration, f func()) Timer
}

// New returns the wall clock.
func New() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Every runs a ticker goroutine bound to a cancel context.
func (realClock) Every(d time.Duration, f func()) Timer {
	ctx, cancel := context.WithCancel(context.Background())
	t := &tickerTimer{cancel: cancel}

	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if t.stopped.Load() {
					return
				}
				f()
			}
		}
	}()

	return t
}

type tickerTimer struct {
	cancel  context.CancelFunc
	stopped atomic.Bool
}

func (t *tickerTimer) Stop() bool {
	if t.stopped.Swap(true) {
		return false
	}
	t.cancel()
	return true
}
