package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/appsattic/feed2json/app/feed"
)

var (
	ErrQueueFull   = errors.New("task queue is full")
	ErrPoolStopped = errors.New("worker pool is stopped")
)

var _ TaskSchedulerInterface = (*Pool)(nil)

type Pool struct {
	workerCount int
	taskTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
	mu          sync.RWMutex
	stopped     bool
}

func NewPool(workerCount, queueSize int, taskTimeout time.Duration) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	return &Pool{
		workerCount: workerCount,
		taskTimeout: taskTimeout,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, queueSize),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop cancels running tasks and waits for the workers. Tasks still queued
// are executed with the cancelled context so each of them completes.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	close(p.taskQueue)

	for task := range p.taskQueue {
		p.executeTask(-1, task)
	}
}

func (p *Pool) EnqueueTask(task TaskInterface) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.taskQueue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case task := <-p.taskQueue:
			p.executeTask(id, task)

		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(p.ctx, p.taskTimeout)
	defer cancel()

	if err := task.Execute(taskCtx); err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "url", task.GetURL(), "error_kind", feed.ErrorKind(err), "error", err)
	}
}
