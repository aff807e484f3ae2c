// Package queue implements the bounded, in-memory worker pool: a
// priority queue of tasks, a fixed set of workers, per-task one-shot
// futures, a TTL-evicted results cache, and a periodic health monitor
// that recovers stuck workers.
package queue

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/catalogops/enrichment-pipeline/pkg/models"

	"github.com/google/uuid"
)

// Config controls pool sizing, retry counts, and health-monitor timings.
type Config struct {
	MaxWorkers         int
	QueueCapacity      int
	MaxRetries         int
	ResultTTL          time.Duration
	StuckThreshold     time.Duration
	HealthCheckInterval time.Duration
}

// DefaultConfig mirrors spec §4.5/§6's defaults.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:          4,
		QueueCapacity:       100,
		MaxRetries:          3,
		ResultTTL:           time.Hour,
		StuckThreshold:      300 * time.Second,
		HealthCheckInterval: 10 * time.Second,
	}
}

// Pool is the in-memory worker pool. It is safe for concurrent use once
// Start has returned.
type Pool struct {
	handler    Handler
	maxRetries int
	capacity   int
	logger     *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	heap     taskHeap
	sequence int64
	stopped  bool

	workers []*worker

	futuresMu sync.Mutex
	futures   map[string]chan models.Result

	resultsMu sync.Mutex
	results   map[string]models.Result

	resultTTL      time.Duration
	stuckThreshold time.Duration
	healthInterval time.Duration

	totalSubmitted atomic.Int64
	totalCompleted atomic.Int64
	totalFailed    atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a Pool that dispatches every task to handler. Call Start to
// spin up workers and the health monitor.
func New(cfg Config, handler Handler, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		handler:        handler,
		maxRetries:     cfg.MaxRetries,
		capacity:       cfg.QueueCapacity,
		logger:         logger,
		futures:        make(map[string]chan models.Result),
		results:        make(map[string]models.Result),
		resultTTL:      cfg.ResultTTL,
		stuckThreshold: cfg.StuckThreshold,
		healthInterval: cfg.HealthCheckInterval,
		stopCh:         make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < cfg.MaxWorkers; i++ {
		p.workers = append(p.workers, newWorker(fmt.Sprintf("worker-%d", i), p))
	}
	return p
}

// Start spawns the configured worker goroutines plus the health monitor.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *worker) {
			defer p.wg.Done()
			w.run(ctx)
		}(w)
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runHealthMonitor(ctx)
	}()
	p.logger.Info("worker pool started", "workers", len(p.workers), "queue_capacity", p.capacity)
}

// Stop signals every worker to drain the queue and exit, then waits for
// them. It does not forcibly cancel in-flight tasks (spec §5).
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		p.cond.Broadcast()
		close(p.stopCh)
	})
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Submit enqueues a task of taskType with the given payload and priority
// (lower value = higher priority) and returns its task id. Submit is
// non-blocking: a full queue fails fast with ErrQueueFull rather than
// blocking the caller (spec §8 property 9 permits either policy).
func (p *Pool) Submit(taskType models.TaskType, payload map[string]any, priority int) (string, error) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return "", ErrPoolStopped
	}
	if len(p.heap) >= p.capacity {
		p.mu.Unlock()
		return "", ErrQueueFull
	}

	task := models.Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		Payload:   payload,
		Priority:  priority,
		CreatedAt: time.Now(),
	}

	// The future must exist before the task is enqueued/signaled: a
	// worker can dequeue and publish a result as soon as cond.Signal
	// wakes it, and publish looks the future up by task ID. Creating it
	// after the push races a fast worker, which would find no future to
	// resolve and leak the one created afterward.
	p.futuresMu.Lock()
	p.futures[task.ID] = make(chan models.Result, 1)
	p.futuresMu.Unlock()

	p.sequence++
	heap.Push(&p.heap, &queuedTask{task: task, sequence: p.sequence})
	p.mu.Unlock()
	p.cond.Signal()

	p.totalSubmitted.Add(1)
	return task.ID, nil
}

// dequeue blocks until a task is available or the pool is stopped and
// drained, in which case ok is false.
func (p *Pool) dequeue(ctx context.Context) (*queuedTask, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.heap) == 0 && !p.stopped {
		p.cond.Wait()
	}
	if len(p.heap) == 0 && p.stopped {
		return nil, false
	}
	item := heap.Pop(&p.heap).(*queuedTask)
	return item, true
}

// publish records result in the results cache and resolves its future.
// Insertion into the cache happens before the future is resolved, so
// AwaitResult is serviceable from the cache even if the caller races past
// the future resolution (spec §4.5: "Result publication is atomic from
// the caller's view").
func (p *Pool) publish(result models.Result) {
	result.PublishedAt = time.Now()

	p.resultsMu.Lock()
	p.results[result.TaskID] = result
	p.resultsMu.Unlock()

	if result.Success {
		p.totalCompleted.Add(1)
	} else {
		p.totalFailed.Add(1)
	}

	p.futuresMu.Lock()
	future, ok := p.futures[result.TaskID]
	delete(p.futures, result.TaskID)
	p.futuresMu.Unlock()
	if ok {
		future <- result
	}
}

// AwaitResult blocks for the given task's Result up to timeout (zero
// means no timeout). It serves from the results cache first, then waits
// on the task's future.
func (p *Pool) AwaitResult(ctx context.Context, taskID string, timeout time.Duration) (models.Result, error) {
	p.resultsMu.Lock()
	if result, ok := p.results[taskID]; ok {
		p.resultsMu.Unlock()
		return result, nil
	}
	p.resultsMu.Unlock()

	p.futuresMu.Lock()
	future, ok := p.futures[taskID]
	p.futuresMu.Unlock()
	if !ok {
		// publish may have cached the result and dropped the future between
		// the cache check above and the futures lookup.
		p.resultsMu.Lock()
		result, cached := p.results[taskID]
		p.resultsMu.Unlock()
		if cached {
			return result, nil
		}
		return models.Result{}, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case result := <-future:
		return result, nil
	case <-timeoutCh:
		return models.Result{}, fmt.Errorf("%w: %s", ErrTaskTimeout, taskID)
	case <-ctx.Done():
		return models.Result{}, ctx.Err()
	}
}

// Health returns a point-in-time snapshot of the pool's state.
func (p *Pool) Health() PoolHealth {
	p.mu.Lock()
	depth := len(p.heap)
	p.mu.Unlock()

	snapshots := make([]models.WorkerSnapshot, 0, len(p.workers))
	for _, w := range p.workers {
		snapshots = append(snapshots, w.snapshot())
	}

	p.resultsMu.Lock()
	cached := len(p.results)
	p.resultsMu.Unlock()

	return PoolHealth{
		QueueDepth:     depth,
		QueueCapacity:  p.capacity,
		Workers:        snapshots,
		TotalSubmitted: p.totalSubmitted.Load(),
		TotalCompleted: p.totalCompleted.Load(),
		TotalFailed:    p.totalFailed.Load(),
		ResultsCached:  cached,
	}
}
