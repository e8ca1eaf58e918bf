package resilience

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// ErrBulkheadFull is returned when a caller gave up waiting for a slot.
var ErrBulkheadFull = errors.New("bulkhead full")

// Bulkhead bounds how many calls to one upstream are in flight at once, so a
// slow processor cannot pin every request goroutine.
type Bulkhead struct {
	sem *semaphore.Weighted
}

// NewBulkhead creates a Bulkhead with limit slots. limit < 1 is clamped to 1.
func NewBulkhead(limit int) *Bulkhead {
	if limit < 1 {
		limit = 1
	}
	return &Bulkhead{sem: semaphore.NewWeighted(int64(limit))}
}

// Run waits for a slot, runs fn, and releases the slot. A nil Bulkhead runs
// fn directly. If ctx ends while waiting, fn is not called and the error
// wraps both ErrBulkheadFull and the context error.
func (b *Bulkhead) Run(ctx context.Context, fn func() error) error {
	if b == nil || b.sem == nil {
		return fn()
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrBulkheadFull, err)
	}
	defer b.sem.Release(1)
	return fn()
}
