// Package taskqueue runs a self-feeding set of tasks on a fixed worker pool.
package taskqueue

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/relocate/internal/fileproc"
)

// Task is one unit of work. Tasks may Submit further tasks.
type Task func(ctx context.Context) error

// Queue is an unbounded FIFO drained by a worker pool. It finishes when the
// queue is empty and no task is running, since only running tasks can
// submit more work. A Queue runs once.
type Queue struct {
	workers int

	mu      sync.Mutex
	cond    *sync.Cond
	items   []Task
	head    int
	pending int // submitted but not finished
	stopped bool
}

// New returns a queue drained by workers goroutines. A non-positive count
// selects fileproc.DefaultWorkers.
func New(workers int) *Queue {
	if workers <= 0 {
		workers = fileproc.DefaultWorkers()
	}
	q := &Queue{workers: workers}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Workers returns the pool size.
func (q *Queue) Workers() int { return q.workers }

// Submit enqueues t. It is a no-op once the queue has stopped.
func (q *Queue) Submit(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	q.items = append(q.items, t)
	q.pending++
	q.cond.Signal()
}

// Run submits seed and drains the queue. It returns the first task error,
// or the context error when ctx ends first. Either one stops dequeuing;
// tasks already running finish. Task panics are re-raised by Run.
func (q *Queue) Run(ctx context.Context, seed ...Task) error {
	for _, t := range seed {
		q.Submit(t)
	}
	stop := context.AfterFunc(ctx, q.stop)
	defer stop()

	p := pool.New().WithErrors().WithFirstError()
	for range q.workers {
		p.Go(func() error {
			for {
				t, ok := q.next()
				if !ok {
					return nil
				}
				if err := q.exec(ctx, t); err != nil {
					q.stop()
					return err
				}
			}
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (q *Queue) exec(ctx context.Context, t Task) error {
	returned := false
	defer func() {
		if !returned {
			q.stop()
		}
		q.done()
	}()
	err := t(ctx)
	returned = true
	return err
}

// next blocks until a task is available or the queue is finished.
func (q *Queue) next() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.head == len(q.items) && q.pending > 0 && !q.stopped {
		q.cond.Wait()
	}
	if q.stopped || q.head == len(q.items) {
		return nil, false
	}
	t := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items, q.head = q.items[:0], 0
	}
	return t, true
}

func (q *Queue) done() {
	q.mu.Lock()
	q.pending--
	if q.pending == 0 {
		q.cond.Broadcast()
	}
	q.mu.Unlock()
}

func (q *Queue) stop() {
	q.mu.Lock()
	q.stopped = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
