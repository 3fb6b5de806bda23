// Package dispatch provides the bounded worker pool that decouples
// anomaly analysis from the request path. Submissions never block the
// caller; a fixed number of workers caps how many tasks execute
// concurrently, and everything beyond that waits in a FIFO queue. This
// is the pipeline's only explicit backpressure mechanism.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
)

// Task is one unit of asynchronous work. The alias (rather than a
// defined type) lets plain funcs satisfy caller-side interfaces.
type Task = func(ctx context.Context)

// DefaultWorkers is the default concurrency ceiling.
const DefaultWorkers = 5

// Config configures a Pool.
type Config struct {
	// Workers is the maximum number of concurrently executing tasks.
	Workers int
	// Logger for task failures.
	Logger *slog.Logger
	// Metrics for queue/task tracking. Optional.
	Metrics *Metrics
}

// Pool is a fixed-size worker pool over an unbounded FIFO queue.
// Once submitted, tasks run to completion or failure; there is no
// cancellation beyond the context handed to Start. A panicking task is
// recovered, logged, and isolated from every other task and from the
// submitter.
type Pool struct {
	config Config

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	running bool
	stopped bool

	workerWG sync.WaitGroup
	baseCtx  context.Context
}

// NewPool creates a Pool. Start must be called before tasks execute;
// submissions made earlier queue up.
func NewPool(config Config) *Pool {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	p := &Pool{config: config}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the workers. The context is passed to every task;
// canceling it does not abort tasks already running but is visible to
// their bounded I/O. Calling Start twice is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopped = false
	p.baseCtx = ctx

	p.workerWG.Add(p.config.Workers)
	for i := 0; i < p.config.Workers; i++ {
		go p.worker()
	}
}

// Stop drains the queue and waits for all workers to finish. Tasks
// submitted after Stop are dropped with a log entry.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.workerWG.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

// Submit enqueues a task without blocking. Tasks wait in FIFO order
// until a worker slot frees.
func (p *Pool) Submit(task Task) {
	if task == nil {
		return
	}
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.config.Logger.Warn("task submitted after dispatcher stop, dropping")
		if p.config.Metrics != nil {
			p.config.Metrics.IncTask(TaskDropped)
		}
		return
	}
	p.queue = append(p.queue, task)
	depth := len(p.queue)
	p.cond.Signal()
	p.mu.Unlock()

	if p.config.Metrics != nil {
		p.config.Metrics.SetQueueDepth(depth)
	}
}

// QueueDepth returns the number of tasks waiting for a worker.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Pool) worker() {
	defer p.workerWG.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.stopped {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		depth := len(p.queue)
		ctx := p.baseCtx
		p.mu.Unlock()

		if p.config.Metrics != nil {
			p.config.Metrics.SetQueueDepth(depth)
		}
		p.runTask(ctx, task)
	}
}

// runTask executes one task, converting panics into log entries so a
// failing analysis never surfaces to the original request.
func (p *Pool) runTask(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.config.Logger.Error("dispatched task panicked", "panic", r)
			if p.config.Metrics != nil {
				p.config.Metrics.IncTask(TaskPanicked)
			}
		}
	}()
	task(ctx)
	if p.config.Metrics != nil {
		p.config.Metrics.IncTask(TaskCompleted)
	}
}
