package queue

import (
	"context"
	"errors"

	"github.com/catalogops/enrichment-pipeline/pkg/models"
)

// Sentinel errors surfaced by the pool's public contract (spec §7).
var (
	ErrQueueFull       = errors.New("queue full")
	ErrUnknownTask     = errors.New("unknown task")
	ErrTaskTimeout     = errors.New("task timed out")
	ErrPoolStopped     = errors.New("worker pool stopped")
)

// Handler executes one task's payload and returns its reply map. The
// executor package's *executor.Executor satisfies this for every
// registered task type.
type Handler interface {
	Execute(ctx context.Context, taskType models.TaskType, payload map[string]any) (map[string]any, error)
}

// PoolHealth is a point-in-time snapshot returned by Pool.Health,
// following the teacher's PoolHealth/WorkerHealth split
// (pkg/queue/types.go).
type PoolHealth struct {
	QueueDepth       int                      `json:"queue_depth"`
	QueueCapacity    int                      `json:"queue_capacity"`
	Workers          []models.WorkerSnapshot  `json:"workers"`
	TotalSubmitted   int64                    `json:"total_submitted"`
	TotalCompleted   int64                    `json:"total_completed"`
	TotalFailed      int64                    `json:"total_failed"`
	ResultsCached    int                      `json:"results_cached"`
}
