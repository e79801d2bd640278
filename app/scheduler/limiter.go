package scheduler

import (
	"context"
)

// Limiter bounds how many poller-submitted tasks run at once. All four
// pollers share one instance, so total engine parallelism stays fixed no
// matter how many rows a cycle picks up.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter creates a limiter with the given capacity
func NewLimiter(capacity int) *Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	return &Limiter{slots: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is free or the context is cancelled
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		limiterInFlight.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot. Every successful Acquire must be paired with
// exactly one Release.
func (l *Limiter) Release() {
	limiterInFlight.Dec()
	<-l.slots
}

// Go runs fn on its own goroutine once a slot is free, releasing the slot
// when fn returns. A cancelled context before acquisition drops the task.
func (l *Limiter) Go(ctx context.Context, fn func()) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	go func() {
		defer l.Release()
		fn()
	}()
	return nil
}

// InFlight reports how many slots are currently held
func (l *Limiter) InFlight() int {
	return len(l.slots)
}
