package worker

import (
	"context"
	"sync"
)

// Task is a unit of work executed on the pool. Tasks carry their own error
// handling; the pool never inspects outcomes.
type Task func(ctx context.Context)

// Pool is a fixed-size worker pool with a buffered submission queue. It gives
// dispatch an explicit place to run channel sends so shutdown can wait for
// in-flight work to drain.
type Pool struct {
	numWorkers int
	tasks      chan Task
	wg         sync.WaitGroup

	mu      sync.Mutex
	ctx     context.Context
	stopped bool
}

func NewPool(numWorkers int, bufferSize int) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		tasks:      make(chan Task, bufferSize),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Workers run until Stop closes the queue. Cancellation reaches tasks
// through their context argument; the queue itself keeps draining so a
// submitter mid-shutdown is never left waiting on a task nobody runs.
func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for task := range p.tasks {
		task(ctx)
	}
}

// Submit queues a task. Once the pool has stopped, the task runs inline on
// the caller's goroutine instead, so late submitters still see their work
// execute and can complete their own accounting.
func (p *Pool) Submit(task Task) {
	p.mu.Lock()
	if p.stopped {
		ctx := p.ctx
		p.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		task(ctx)
		return
	}
	// The send happens under the lock so it can never race Stop closing
	// the queue. Workers stay alive until Stop, so a full queue drains.
	p.tasks <- task
	p.mu.Unlock()
}

// Stop closes the queue and waits for workers to finish the tasks already
// submitted. Safe to call more than once.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
