package embedding

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Serializer bounds how many provider submissions run at once.
// Waiters are admitted in arrival order. With a limit of 1 it is a
// single-flight queue.
type Serializer struct {
	sem   *semaphore.Weighted
	limit int64
}

// NewSerializer creates a serializer admitting up to limit concurrent submissions.
func NewSerializer(limit int) *Serializer {
	if limit <= 0 {
		limit = 1
	}
	return &Serializer{sem: semaphore.NewWeighted(int64(limit)), limit: int64(limit)}
}

// Limit returns the configured concurrency.
func (s *Serializer) Limit() int {
	return int(s.limit)
}

// Do waits for a slot, runs fn and releases the slot when fn returns.
// The returned duration is the time spent waiting for the slot.
func (s *Serializer) Do(ctx context.Context, fn func() error) (time.Duration, error) {
	start := time.Now()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return time.Since(start), err
	}
	wait := time.Since(start)
	defer s.sem.Release(1)
	return wait, fn()
}
