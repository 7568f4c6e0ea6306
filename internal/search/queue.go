package search

import (
	"context"
	"sync"
)

// unit is one piece of work on a workQueue.
type unit struct {
	id  string
	run func(ctx context.Context)
}

// workQueue executes units with a fixed number of workers. With one worker
// units run serially in submission order. Each unit gets its own context
// derived from the batch context so it can be cancelled on its own.
type workQueue struct {
	workers int

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func newWorkQueue(workers int) *workQueue {
	if workers <= 0 {
		workers = 1
	}
	return &workQueue{
		workers: workers,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Run executes units and returns once every started unit has finished.
// Units not yet started when ctx is cancelled are never run.
func (q *workQueue) Run(ctx context.Context, units []unit) {
	if len(units) == 0 {
		return
	}

	jobs := make(chan unit)
	var wg sync.WaitGroup
	for range min(q.workers, len(units)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				q.execute(ctx, u)
			}
		}()
	}

feed:
	for _, u := range units {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- u:
		}
	}
	close(jobs)
	wg.Wait()
}

func (q *workQueue) execute(ctx context.Context, u unit) {
	uctx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancels[u.id] = cancel
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.cancels, u.id)
		q.mu.Unlock()
		cancel()
	}()

	if uctx.Err() != nil {
		return
	}
	u.run(uctx)
}

// Cancel cancels a running unit. It reports whether the unit was running.
func (q *workQueue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancel, ok := q.cancels[id]
	if ok {
		cancel()
	}
	return ok
}
