// Package store declares the persistence adapter contracts the batch
// coordinator and executor depend on. A concrete Postgres implementation
// lives in pkg/store/postgres; the core engine never imports that
// subpackage directly.
package store

import (
	"context"
	"time"

	"github.com/catalogops/enrichment-pipeline/pkg/models"
)

// ProductStore reads and mutates catalog products.
type ProductStore interface {
	// GetProduct returns nil, nil if id does not exist.
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	// UpdateProduct upserts the scalar fields named by keys in fields.
	UpdateProduct(ctx context.Context, id string, fields map[string]any) error
	// ReplaceProductTags idempotently replaces id's full tag set.
	ReplaceProductTags(ctx context.Context, id string, tags []string) error
}

// ChangeLogStore appends audit entries.
type ChangeLogStore interface {
	AppendChangeLog(ctx context.Context, entry models.ChangeLogEntry) error
}

// PipelineRunStore manages PipelineRun bookkeeping records.
type PipelineRunStore interface {
	CreatePipelineRun(ctx context.Context, taskType models.TaskType, total int) (string, error)
	UpdatePipelineRun(ctx context.Context, runID string, processed, failed *int, status *models.RunStatus) error
	CompletePipelineRun(ctx context.Context, runID string, status models.RunStatus, processed, failed int) error
	RecentPipelineRuns(ctx context.Context, limit int) ([]models.PipelineRun, error)
}

// Store is the full persistence adapter contract (spec §6).
type Store interface {
	ProductStore
	ChangeLogStore
	PipelineRunStore
}

// Now is a replaceable clock, time.Now by default. No code in this module
// reads it: pkg/store/postgres and pkg/coordinator call time.Now directly,
// so replacing Now does not change their timestamps.
var Now = time.Now
