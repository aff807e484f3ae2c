// Package coordinator orchestrates a batch of products through one task
// type: fan out to the worker pool, consume results in submission order,
// apply persistence mutations plus an audit entry per product, broadcast
// progress, and finalize the pipeline run.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/catalogops/enrichment-pipeline/pkg/models"
)

// Pool is the subset of *queue.Pool the coordinator depends on.
type Pool interface {
	Submit(taskType models.TaskType, payload map[string]any, priority int) (string, error)
	AwaitResult(ctx context.Context, taskID string, timeout time.Duration) (models.Result, error)
}

// Store is the subset of the persistence adapter the coordinator depends
// on (spec §6).
type Store interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	UpdateProduct(ctx context.Context, id string, fields map[string]any) error
	ReplaceProductTags(ctx context.Context, id string, tags []string) error
	AppendChangeLog(ctx context.Context, entry models.ChangeLogEntry) error
	CreatePipelineRun(ctx context.Context, taskType models.TaskType, total int) (string, error)
	UpdatePipelineRun(ctx context.Context, runID string, processed, failed *int, status *models.RunStatus) error
	CompletePipelineRun(ctx context.Context, runID string, status models.RunStatus, processed, failed int) error
	RecentPipelineRuns(ctx context.Context, limit int) ([]models.PipelineRun, error)
}

// Broadcaster is the subset of *broadcaster.Broadcaster the coordinator
// depends on.
type Broadcaster interface {
	Broadcast(channel string, message any)
}

const progressChannel = "pipeline_progress"

// Coordinator wires a worker pool, a persistence adapter, and a
// broadcaster together. The broadcaster is accepted through the
// constructor rather than wired in after the fact (spec §9 design note on
// inverting the cyclic pipeline<->broadcaster reference).
type Coordinator struct {
	pool        Pool
	store       Store
	broadcaster Broadcaster
	timeout     time.Duration
	logger      *slog.Logger
}

// New builds a Coordinator.
func New(pool Pool, store Store, bc Broadcaster, timeout time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{pool: pool, store: store, broadcaster: bc, timeout: timeout, logger: logger}
}

type submittedTask struct {
	taskID    string
	productID string
}

// ProductOutcome records the per-product result of one batch run, for
// callers that want more than the aggregate PipelineRun counters.
type ProductOutcome struct {
	ProductID string
	Success   bool
	Error     string
}

// RunBatch fans productIDs out to the pool for taskType, consumes results
// in submission order, applies mutations + audit log, broadcasts progress
// every 5 completions, and finalizes the run (spec §4.6).
func (c *Coordinator) RunBatch(ctx context.Context, productIDs []string, taskType models.TaskType, quantize bool) (*models.PipelineRun, []ProductOutcome, error) {
	runID, err := c.store.CreatePipelineRun(ctx, taskType, len(productIDs))
	if err != nil {
		return nil, nil, fmt.Errorf("create pipeline run: %w", err)
	}

	run := &models.PipelineRun{
		ID:        runID,
		TaskType:  taskType,
		Status:    models.RunRunning,
		StartTime: time.Now(),
		Total:     len(productIDs),
	}

	submitted := make([]submittedTask, 0, len(productIDs))
	for _, productID := range productIDs {
		product, err := c.store.GetProduct(ctx, productID)
		if err != nil || product == nil {
			c.logger.Warn("skipping product, could not fetch", "product_id", productID, "error", err)
			continue
		}

		payload := map[string]any{
			"id":           product.ID,
			"title":        product.Title,
			"body_html":    product.BodyHTML,
			"product_type": product.ProductType,
			"category":     product.Category,
			"tags":         strings.Join(product.Tags, ","),
			"task_type":    string(taskType),
			"quantize":     quantize,
		}

		taskID, err := c.pool.Submit(taskType, payload, 1)
		if err != nil {
			c.logger.Warn("submit failed", "product_id", productID, "error", err)
			continue
		}
		submitted = append(submitted, submittedTask{taskID: taskID, productID: productID})
	}

	var outcomes []ProductOutcome
	processed, failed := 0, 0

	for i, st := range submitted {
		outcome := c.processOne(ctx, st, taskType)
		outcomes = append(outcomes, outcome)

		if outcome.Success {
			processed++
		} else {
			failed++
		}
		run.Processed, run.Failed = processed, failed

		processedVal, failedVal := processed, failed
		if err := c.store.UpdatePipelineRun(ctx, runID, &processedVal, &failedVal, nil); err != nil {
			c.logger.Warn("update pipeline run counters failed", "run_id", runID, "error", err)
		}

		if (processed+failed)%5 == 0 || i == len(submitted)-1 {
			c.broadcastProgress(ctx, run)
		}
	}

	status := models.RunCompleted
	if failed > 0 {
		status = models.RunFailed
	}
	if err := c.store.CompletePipelineRun(ctx, runID, status, processed, failed); err != nil {
		return run, outcomes, fmt.Errorf("complete pipeline run: %w", err)
	}
	run.Status = status
	now := time.Now()
	run.EndTime = &now

	return run, outcomes, nil
}

// processOne awaits one task's Result and, on success, applies the
// product update, tag replacement, and audit log in sequence. A failure
// at any step aborts the remaining steps for that product; earlier
// partial effects are not rolled back (spec §4.6).
func (c *Coordinator) processOne(ctx context.Context, st submittedTask, taskType models.TaskType) ProductOutcome {
	result, err := c.pool.AwaitResult(ctx, st.taskID, c.timeout)
	if err != nil {
		return ProductOutcome{ProductID: st.productID, Success: false, Error: err.Error()}
	}
	if !result.Success {
		return ProductOutcome{ProductID: st.productID, Success: false, Error: result.Err}
	}

	priorProduct, err := c.store.GetProduct(ctx, st.productID)
	if err != nil {
		return ProductOutcome{ProductID: st.productID, Success: false, Error: err.Error()}
	}

	updateFields := deriveUpdateFields(result.Value)
	if len(updateFields) > 0 {
		if err := c.store.UpdateProduct(ctx, st.productID, updateFields); err != nil {
			return ProductOutcome{ProductID: st.productID, Success: false, Error: err.Error()}
		}
	}

	if tagsVal, ok := result.Value["optimized_tags"]; ok {
		tags := parseTagList(tagsVal)
		if err := c.store.ReplaceProductTags(ctx, st.productID, tags); err != nil {
			return ProductOutcome{ProductID: st.productID, Success: false, Error: err.Error()}
		}
	}

	source, _ := result.Value["model_used"].(string)
	if source == "" {
		source = "worker_pool"
	}

	var oldSnapshot map[string]any
	if priorProduct != nil {
		oldSnapshot = map[string]any{
			"id":           priorProduct.ID,
			"title":        priorProduct.Title,
			"body_html":    priorProduct.BodyHTML,
			"category":     priorProduct.Category,
			"tags":         priorProduct.Tags,
		}
	}

	entry := models.ChangeLogEntry{
		ProductID: st.productID,
		Field:     string(taskType),
		Old:       oldSnapshot,
		New:       result.Value,
		Source:    source,
		CreatedAt: time.Now(),
	}
	if err := c.store.AppendChangeLog(ctx, entry); err != nil {
		return ProductOutcome{ProductID: st.productID, Success: false, Error: err.Error()}
	}

	return ProductOutcome{ProductID: st.productID, Success: true}
}

// deriveUpdateFields maps reply keys onto product columns (spec §4.6).
func deriveUpdateFields(reply map[string]any) map[string]any {
	fields := make(map[string]any)

	if v, ok := reply["meta_title"]; ok {
		fields["title"] = v
	} else if v, ok := reply["optimized_title"]; ok {
		fields["title"] = v
	}

	if v, ok := reply["optimized_description"]; ok {
		fields["body_html"] = v
	}

	if v, ok := reply["normalized_category"]; ok {
		fields["normalized_category"] = v
	}
	if v, ok := reply["category_confidence"]; ok {
		fields["category_confidence"] = v
	}

	return fields
}

// parseTagList normalizes a reply's optimized_tags value (a comma
// separated string, or already a list) into a string slice.
func parseTagList(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		parts := strings.Split(val, ",")
		tags := make([]string, 0, len(parts))
		for _, p := range parts {
			tags = append(tags, strings.TrimSpace(p))
		}
		return tags
	case []string:
		return val
	case []any:
		tags := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	default:
		return nil
	}
}

func (c *Coordinator) broadcastProgress(ctx context.Context, run *models.PipelineRun) {
	recent, err := c.store.RecentPipelineRuns(ctx, 10)
	if err != nil {
		c.logger.Warn("fetch recent pipeline runs for progress broadcast failed", "error", err)
		recent = nil
	}

	c.broadcaster.Broadcast(progressChannel, map[string]any{
		"type":          "pipeline_progress_update",
		"pipeline_runs": recent,
		"current_run": map[string]any{
			"id":         run.ID,
			"processed":  run.Processed,
			"failed":     run.Failed,
			"total":      run.Total,
			"percentage": run.Percentage(),
		},
	})
}
