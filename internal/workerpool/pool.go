// Package workerpool provides a bounded pool for running audio transcription
// jobs concurrently.
//
// The pool caps the number of in-flight jobs with a weighted semaphore. When
// all slots are busy, Submit blocks until one frees up or the context is
// cancelled, so a burst of flushed audio buffers cannot spawn unbounded
// goroutines.
package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is the pool size used when none is configured.
const DefaultSize = 8

// Job is a unit of work executed on the pool.
type Job func(ctx context.Context)

// Pool runs jobs with bounded concurrency.
type Pool struct {
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// New creates a pool that runs at most size jobs concurrently. A size of zero
// or less falls back to DefaultSize.
func New(size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		logger: logger,
	}
}

// Submit schedules job for execution. It blocks while the pool is at
// capacity and returns once a slot has been acquired; the job itself runs
// asynchronously. Submit fails if ctx is cancelled before a slot frees up or
// if the pool has been closed.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("workerpool: acquire slot: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return fmt.Errorf("workerpool: pool is closed")
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("worker job panicked", "panic", r)
			}
		}()
		job(ctx)
	}()
	return nil
}

// Close marks the pool closed and waits for all in-flight jobs to finish.
// Further Submit calls fail after Close returns.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
