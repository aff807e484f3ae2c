// Package models defines the value types passed between the worker pool,
// executor, and batch coordinator.
package models

import "time"

// TaskType enumerates the enrichment operations the pipeline knows how to
// perform.
type TaskType string

const (
	TaskMetaOptimization      TaskType = "meta_optimization"
	TaskContentRewriting      TaskType = "content_rewriting"
	TaskKeywordAnalysis       TaskType = "keyword_analysis"
	TaskTagOptimization       TaskType = "tag_optimization"
	TaskCategoryNormalization TaskType = "category_normalization"
	TaskSchemaAnalysis        TaskType = "schema_analysis"
)

// RequiredFields lists the reply keys that must be present for a task's
// result to validate. category_normalization has no required fields; its
// outcome is produced by the taxonomy matcher rather than reply validation.
func (t TaskType) RequiredFields() []string {
	switch t {
	case TaskMetaOptimization:
		return []string{"meta_title", "meta_description", "seo_keywords"}
	case TaskContentRewriting:
		return []string{"optimized_title", "optimized_description"}
	case TaskKeywordAnalysis:
		return []string{"primary_keywords", "long_tail_keywords"}
	case TaskTagOptimization:
		return []string{"optimized_tags", "removed_tags", "added_tags"}
	case TaskSchemaAnalysis:
		return []string{"schema_compliance", "issues"}
	default:
		return nil
	}
}

// Task is one unit of work accepted by the worker pool.
type Task struct {
	ID        string
	Type      TaskType
	Payload   map[string]any
	Priority  int
	CreatedAt time.Time
}

// Result is the outcome of exactly one Task.
type Result struct {
	TaskID        string
	Success       bool
	Value         map[string]any
	Err           string
	ExecutionTime time.Duration
	PublishedAt   time.Time
}

// WorkerStatus is the lifecycle state of one pool slot.
type WorkerStatus string

const (
	WorkerIdle  WorkerStatus = "IDLE"
	WorkerBusy  WorkerStatus = "BUSY"
	WorkerError WorkerStatus = "ERROR"
)

// WorkerSnapshot is a point-in-time, read-only view of one worker's state,
// safe to hand out of the pool's lock.
type WorkerSnapshot struct {
	WorkerID         string
	Status           WorkerStatus
	CurrentTaskID    string
	TasksProcessed   int64
	TasksFailed      int64
	AvgExecutionTime time.Duration
}

// RunStatus is the lifecycle state of a PipelineRun.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// PipelineRun is the bookkeeping record for one batch invocation of one
// task type over a list of product ids.
type PipelineRun struct {
	ID        string
	TaskType  TaskType
	Status    RunStatus
	StartTime time.Time
	EndTime   *time.Time
	Total     int
	Processed int
	Failed    int
}

// Percentage returns the run's completion percentage, 0 when Total is 0.
func (r *PipelineRun) Percentage() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Processed+r.Failed) / float64(r.Total) * 100
}

// ChangeLogEntry is an append-only audit record of a single field
// transformation on a single product. Only Reviewed mutates after write.
type ChangeLogEntry struct {
	ProductID string
	Field     string
	Old       map[string]any
	New       map[string]any
	Source    string
	CreatedAt time.Time
	Reviewed  bool
}

// ModelCapability declares what a model can be used for and its token
// budget. Loaded once at startup and treated as immutable.
type ModelCapability struct {
	ModelName    string
	SupportedOn  map[TaskType]bool
	MaxTokens    int
	Description  string
}

// Product is the subset of catalog-product fields the pipeline reads and
// writes. Field names follow the persistence adapter contract in spec §6.
type Product struct {
	ID         string
	Title      string
	BodyHTML   string
	ProductType string
	Category   string
	Tags       []string
}
