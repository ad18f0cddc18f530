package workqueue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lazynerd-007/lpv1-sub000/pkg/logger"
)

// Task is a unit of asynchronous work executed by the pool.
type Task func(ctx context.Context)

// Queue accepts fire-and-forget work items. Enqueue must never block the
// caller; implementations report whether the task was accepted.
type Queue interface {
	Enqueue(task Task) bool
}

const (
	defaultWorkers = 4
	defaultBuffer  = 256

	drainTimeout = 10 * time.Second
)

// Pool is an in-process bounded worker pool backing the Queue contract.
// Tasks that arrive while the buffer is full are dropped with a warning,
// matching the best-effort semantics of live delivery side effects.
type Pool struct {
	tasks  chan Task
	log    *zap.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewPool constructs a Pool with the supplied worker count and buffer size.
// Non-positive values fall back to defaults.
func NewPool(workers, buffer int) *Pool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	pool := &Pool{
		tasks: make(chan Task, buffer),
		log:   logger.WithModule("workqueue"),
	}
	pool.start(workers)
	return pool
}

func (p *Pool) start(workers int) {
	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	p.cancel = cancel
	p.started = true
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			// Drain whatever is already queued before exiting.
			for {
				select {
				case task := <-p.tasks:
					p.run(ctx, task)
				default:
					return
				}
			}
		case task := <-p.tasks:
			p.run(ctx, task)
		}
	}
}

func (p *Pool) run(ctx context.Context, task Task) {
	if ctx.Err() != nil {
		// Draining during Stop. Queued tasks still need a usable context or
		// every flush they carry fails with context.Canceled.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("task panic", zap.Any("error", r))
		}
	}()
	task(ctx)
}

// Enqueue submits a task without blocking. It returns false when the pool is
// saturated or already stopped.
func (p *Pool) Enqueue(task Task) bool {
	if task == nil {
		return false
	}

	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return false
	}

	select {
	case p.tasks <- task:
		return true
	default:
		p.log.Warn("queue saturated, dropping task")
		return false
	}
}

// Stop cancels the workers and waits for in-flight and queued tasks to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}
