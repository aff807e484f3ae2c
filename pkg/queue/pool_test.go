package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/catalogops/enrichment-pipeline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedHandler struct {
	delay    time.Duration
	busyNow  *atomic.Int64
	maxBusy  *atomic.Int64
	callFunc func(ctx context.Context, taskType models.TaskType, payload map[string]any) (map[string]any, error)
}

func (h *fixedHandler) Execute(ctx context.Context, taskType models.TaskType, payload map[string]any) (map[string]any, error) {
	if h.callFunc != nil {
		return h.callFunc(ctx, taskType, payload)
	}
	if h.busyNow != nil {
		n := h.busyNow.Add(1)
		defer h.busyNow.Add(-1)
		for {
			cur := h.maxBusy.Load()
			if n <= cur || h.maxBusy.CompareAndSwap(cur, n) {
				break
			}
		}
	}
	time.Sleep(h.delay)
	return map[string]any{"ok": true}, nil
}

func testPool(t *testing.T, cfg Config, handler Handler) *Pool {
	t.Helper()
	p := New(cfg, handler, nil)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	t.Cleanup(func() {
		cancel()
		p.Stop()
	})
	return p
}

func TestSubmitAndAwaitResult_HappyPath(t *testing.T) {
	cfg := DefaultConfig()
	p := testPool(t, cfg, &fixedHandler{})

	taskID, err := p.Submit(models.TaskMetaOptimization, map[string]any{}, 0)
	require.NoError(t, err)

	result, err := p.AwaitResult(context.Background(), taskID, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, true, result.Value["ok"])
}

func TestAwaitResult_UnknownTask(t *testing.T) {
	p := testPool(t, DefaultConfig(), &fixedHandler{})
	_, err := p.AwaitResult(context.Background(), "does-not-exist", time.Second)
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestAwaitResult_Timeout(t *testing.T) {
	cfg := DefaultConfig()
	p := testPool(t, cfg, &fixedHandler{delay: 200 * time.Millisecond})

	taskID, err := p.Submit(models.TaskMetaOptimization, map[string]any{}, 0)
	require.NoError(t, err)

	_, err = p.AwaitResult(context.Background(), taskID, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTaskTimeout)
}

func TestSubmit_QueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueCapacity = 1
	cfg.MaxWorkers = 0 // nothing drains the queue

	p := New(cfg, &fixedHandler{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	_, err := p.Submit(models.TaskMetaOptimization, map[string]any{}, 0)
	require.NoError(t, err)

	_, err = p.Submit(models.TaskMetaOptimization, map[string]any{}, 0)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestBoundedParallelism(t *testing.T) {
	var busyNow, maxBusy atomic.Int64
	cfg := DefaultConfig()
	cfg.MaxWorkers = 2
	cfg.QueueCapacity = 20

	p := testPool(t, cfg, &fixedHandler{delay: 100 * time.Millisecond, busyNow: &busyNow, maxBusy: &maxBusy})

	var ids []string
	for i := 0; i < 10; i++ {
		id, err := p.Submit(models.TaskMetaOptimization, map[string]any{}, 0)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, id := range ids {
		_, err := p.AwaitResult(context.Background(), id, 2*time.Second)
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, maxBusy.Load(), int64(2))
}

func TestPriorityOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []int

	cfg := DefaultConfig()
	cfg.MaxWorkers = 1
	cfg.QueueCapacity = 20

	release := make(chan struct{})
	first := true

	p := New(cfg, &fixedHandler{callFunc: func(_ context.Context, _ models.TaskType, payload map[string]any) (map[string]any, error) {
		mu.Lock()
		if first {
			first = false
			mu.Unlock()
			<-release
		} else {
			idx := payload["idx"].(int)
			order = append(order, idx)
			mu.Unlock()
		}
		return map[string]any{}, nil
	}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	defer func() { cancel(); p.Stop() }()

	holdID, err := p.Submit(models.TaskMetaOptimization, map[string]any{"idx": -99}, 0)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond) // ensure the hold task is dequeued first

	var lowPriorityIDs []string
	for i := 0; i < 3; i++ {
		id, err := p.Submit(models.TaskMetaOptimization, map[string]any{"idx": i}, 0)
		require.NoError(t, err)
		lowPriorityIDs = append(lowPriorityIDs, id)
	}
	highID, err := p.Submit(models.TaskMetaOptimization, map[string]any{"idx": 100}, -1)
	require.NoError(t, err)

	close(release)

	_, err = p.AwaitResult(context.Background(), holdID, 2*time.Second)
	require.NoError(t, err)
	_, err = p.AwaitResult(context.Background(), highID, 2*time.Second)
	require.NoError(t, err)
	for _, id := range lowPriorityIDs {
		_, err := p.AwaitResult(context.Background(), id, 2*time.Second)
		require.NoError(t, err)
	}

	require.Len(t, order, 4)
	assert.Equal(t, 100, order[0])
	assert.Equal(t, []int{0, 1, 2}, order[1:])
}

func TestHealth_RecoversErrorWorker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxWorkers = 1
	cfg.MaxRetries = 0
	cfg.HealthCheckInterval = 20 * time.Millisecond

	p := testPool(t, cfg, &fixedHandler{callFunc: func(context.Context, models.TaskType, map[string]any) (map[string]any, error) {
		panic("boom")
	}})

	taskID, err := p.Submit(models.TaskMetaOptimization, map[string]any{}, 0)
	require.NoError(t, err)

	result, err := p.AwaitResult(context.Background(), taskID, 2*time.Second)
	require.NoError(t, err)
	assert.False(t, result.Success)

	assert.Eventually(t, func() bool {
		health := p.Health()
		return health.Workers[0].Status == models.WorkerIdle
	}, time.Second, 10*time.Millisecond)
}
