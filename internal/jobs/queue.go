// Package jobs provides the delayed-execution queue the dispatch buffer runs
// on: schedule a task for a not-before instant, workers run it afterwards.
// Enqueueing never blocks the caller; only workers block while a task runs.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Queue schedules a task to run at or after notBefore.
type Queue interface {
	Schedule(task func(), notBefore time.Time)
}

// TimerQueue is an in-process Queue: a time.Timer per pending task feeding a
// bounded channel drained by a fixed worker pool. If the channel is full when
// a timer fires, the task runs on its own goroutine instead of waiting, so a
// slow delivery can never delay an unrelated dispatch check.
type TimerQueue struct {
	tasks   chan func()
	workers int

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool

	wg sync.WaitGroup
}

// NewTimerQueue creates a queue drained by the given number of workers.
func NewTimerQueue(workers int) *TimerQueue {
	if workers <= 0 {
		workers = 4
	}
	return &TimerQueue{
		tasks:   make(chan func(), 256),
		workers: workers,
		timers:  map[*time.Timer]struct{}{},
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (q *TimerQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

func (q *TimerQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.tasks:
			runTask(task)
		}
	}
}

// Schedule arms a timer for the task. Scheduling in the past or present
// enqueues immediately.
func (q *TimerQueue) Schedule(task func(), notBefore time.Time) {
	delay := time.Until(notBefore)
	if delay < 0 {
		delay = 0
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return
		}
		select {
		case q.tasks <- task:
		default:
			// Pool saturated; don't delay a time-sensitive check.
			go runTask(task)
		}
	})
	q.timers[timer] = struct{}{}
	q.mu.Unlock()
}

// Stop cancels pending timers and waits for the workers to drain.
func (q *TimerQueue) Stop() {
	q.mu.Lock()
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
	}
	q.timers = map[*time.Timer]struct{}{}
	q.mu.Unlock()
	q.wg.Wait()
}

func runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("background task panicked", "panic", r)
		}
	}()
	task()
}
