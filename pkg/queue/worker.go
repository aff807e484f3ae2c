package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/catalogops/enrichment-pipeline/pkg/models"
)

// worker is one execution slot. Its status is single-writer: only the
// worker goroutine that owns it transitions BUSY<->IDLE; the health
// monitor only ever resets ERROR->IDLE or forces a stuck BUSY worker back
// to IDLE (spec §3 invariants, §4.5 health monitor).
type worker struct {
	id     string
	pool   *Pool
	logger *slog.Logger

	mu             sync.Mutex
	status         models.WorkerStatus
	currentTaskID  string
	taskStartedAt  time.Time
	tasksProcessed int64
	tasksFailed    int64
	totalExecTime  time.Duration
	errorCount     int
}

func newWorker(id string, pool *Pool) *worker {
	return &worker{
		id:     id,
		pool:   pool,
		status: models.WorkerIdle,
		logger: pool.logger.With("worker_id", id),
	}
}

func (w *worker) snapshot() models.WorkerSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	var avg time.Duration
	if w.tasksProcessed > 0 {
		avg = w.totalExecTime / time.Duration(w.tasksProcessed)
	}
	return models.WorkerSnapshot{
		WorkerID:         w.id,
		Status:           w.status,
		CurrentTaskID:    w.currentTaskID,
		TasksProcessed:   w.tasksProcessed,
		TasksFailed:      w.tasksFailed,
		AvgExecutionTime: avg,
	}
}

// run is the worker's main loop: pop a task, process it with bounded
// retries, publish a Result, repeat until the pool is stopped and drained.
func (w *worker) run(ctx context.Context) {
	for {
		qt, ok := w.pool.dequeue(ctx)
		if !ok {
			return
		}
		w.process(ctx, qt.task)
	}
}

func (w *worker) process(ctx context.Context, task models.Task) {
	w.mu.Lock()
	w.status = models.WorkerBusy
	w.currentTaskID = task.ID
	w.taskStartedAt = time.Now()
	w.mu.Unlock()

	result := w.runWithRetries(ctx, task)

	w.mu.Lock()
	// A panic during dispatch already moved status to ERROR; leave it
	// there for the health monitor to reset rather than silently
	// clearing it here.
	if w.status != models.WorkerError {
		w.status = models.WorkerIdle
	}
	w.currentTaskID = ""
	w.tasksProcessed++
	w.totalExecTime += result.ExecutionTime
	if !result.Success {
		w.tasksFailed++
	}
	w.mu.Unlock()

	w.pool.publish(result)
}

// runWithRetries follows spec §4.5: one initial attempt plus up to
// max_retries retries, sleeping min(2^attempt, 30) seconds between
// failures, then a failed Result once the last attempt is exhausted. A panicking handler marks the worker
// ERROR; the health monitor resets it to IDLE on its next cycle.
func (w *worker) runWithRetries(ctx context.Context, task models.Task) models.Result {
	start := time.Now()
	maxRetries := w.pool.maxRetries

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		reply, err := w.dispatch(ctx, task)
		if err == nil {
			return models.Result{
				TaskID:        task.ID,
				Success:       true,
				Value:         reply,
				ExecutionTime: time.Since(start),
			}
		}
		lastErr = err

		if attempt < maxRetries {
			wait := backoff(attempt)
			w.logger.Warn("task attempt failed, retrying", "task_id", task.ID, "attempt", attempt, "wait", wait, "error", err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = maxRetries
			}
		}
	}

	return models.Result{
		TaskID:        task.ID,
		Success:       false,
		Err:           lastErr.Error(),
		ExecutionTime: time.Since(start),
	}
}

func (w *worker) dispatch(ctx context.Context, task models.Task) (reply map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.mu.Lock()
			w.status = models.WorkerError
			w.errorCount++
			w.mu.Unlock()
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return w.pool.handler.Execute(ctx, task.Type, task.Payload)
}

// backoff implements spec §4.5's min(2^attempt, 30) seconds schedule.
func backoff(attempt int) time.Duration {
	secs := math.Pow(2, float64(attempt))
	if secs > 30 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}
