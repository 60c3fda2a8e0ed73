package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/meridianhq/meridian/pkg/observability"
)

// Task is one unit of background work.
type Task func(ctx context.Context) error

// WorkerPool runs tasks on a fixed set of workers with a bounded queue.
type WorkerPool struct {
	name    string
	timeout time.Duration
	log     *observability.Logger

	tasks  chan Task
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// NewWorkerPool starts workers goroutines processing tasks. Each task gets
// a context bounded by timeout. The pool name appears in failure logs.
func NewWorkerPool(ctx context.Context, workers int, name string, timeout time.Duration, log *observability.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &WorkerPool{
		name:    name,
		timeout: timeout,
		log:     log,
		tasks:   make(chan Task, workers*4),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.worker()
			}()
		}
		wg.Wait()
		close(p.done)
	}()

	return p
}

// Submit enqueues a task. It fails when the pool has shut down and blocks
// when the queue is full, applying backpressure to the producer.
func (p *WorkerPool) Submit(task Task) (err error) {
	// A Shutdown racing with the send below closes the task channel;
	// recover turns that panic into the shutdown error.
	defer func() {
		if recover() != nil {
			err = fmt.Errorf("worker pool %s is shut down", p.name)
		}
	}()

	select {
	case <-p.done:
		return fmt.Errorf("worker pool %s is shut down", p.name)
	default:
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.done:
		return fmt.Errorf("worker pool %s is shut down", p.name)
	}
}

// Shutdown stops accepting tasks and waits up to timeout for queued tasks
// to drain.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	p.closeOnce.Do(func() { close(p.tasks) })

	select {
	case <-p.done:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return fmt.Errorf("worker pool %s shutdown timed out after %v", p.name, timeout)
	}
}

func (p *WorkerPool) worker() {
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *WorkerPool) run(task Task) {
	defer func() {
		if r := recover(); r != nil && p.log != nil {
			p.log.WithFields(map[string]interface{}{
				"pool":  p.name,
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("background task panicked")
		}
	}()

	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := task(ctx); err != nil && p.log != nil {
		p.log.WithError(err).WithField("pool", p.name).Warn("background task failed")
	}
}
