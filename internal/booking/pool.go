package booking

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many sagas run concurrently. The bound exists for the
// downstream collaborators: supplier and payment rate limits, not CPU.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewPool constructs a pool allowing up to size concurrent tasks.
func NewPool(size int64) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(size)}
}

// Go runs fn on its own goroutine once a worker slot is free. It blocks
// while the pool is saturated and returns the context error if ctx ends
// before a slot opens.
func (p *Pool) Go(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		fn()
	}()
	return nil
}

// Wait blocks until every started task has finished. Used on shutdown so
// in-flight sagas reach a checkpoint before the process exits.
func (p *Pool) Wait() {
	p.wg.Wait()
}
