//go:build integration

// Integration coverage for the Postgres reference store, gated behind the
// "integration" build tag the same way the teacher's test/database suite
// gates its testcontainers-backed tests.
package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/catalogops/enrichment-pipeline/pkg/models"
	"github.com/catalogops/enrichment-pipeline/pkg/store/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("enrichment_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
		wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestStore_ProductLifecycle(t *testing.T) {
	dsn := startPostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := postgres.Open(ctx, postgres.Config{DSN: dsn})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.CreatePipelineRun(ctx, models.TaskMetaOptimization, 0)
	require.NoError(t, err)

	seedProduct(ctx, t, dsn)

	product, err := store.GetProduct(ctx, "sku-1")
	require.NoError(t, err)
	require.NotNil(t, product)
	require.Equal(t, "Original Title", product.Title)

	require.NoError(t, store.UpdateProduct(ctx, "sku-1", map[string]any{"title": "Rewritten Title"}))
	updated, err := store.GetProduct(ctx, "sku-1")
	require.NoError(t, err)
	require.Equal(t, "Rewritten Title", updated.Title)

	require.NoError(t, store.ReplaceProductTags(ctx, "sku-1", []string{"new", "tags"}))

	require.NoError(t, store.AppendChangeLog(ctx, models.ChangeLogEntry{
		ProductID: "sku-1",
		Field:     "meta_optimization",
		Old:       map[string]any{"title": "Original Title"},
		New:       map[string]any{"title": "Rewritten Title"},
		Source:    "llama3",
		CreatedAt: time.Now(),
	}))
}

func TestStore_PipelineRunLifecycle(t *testing.T) {
	dsn := startPostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := postgres.Open(ctx, postgres.Config{DSN: dsn})
	require.NoError(t, err)
	defer store.Close()

	runID, err := store.CreatePipelineRun(ctx, models.TaskTagOptimization, 10)
	require.NoError(t, err)

	processed, failed := 3, 1
	require.NoError(t, store.UpdatePipelineRun(ctx, runID, &processed, &failed, nil))

	require.NoError(t, store.CompletePipelineRun(ctx, runID, models.RunCompleted, 9, 1))

	runs, err := store.RecentPipelineRuns(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, runs)
	require.Equal(t, runID, runs[0].ID)
	require.Equal(t, models.RunCompleted, runs[0].Status)
}

// seedProduct inserts a row directly over a throwaway connection since
// product ingestion is a separate, out-of-scope job this package does not
// own (spec §1) — tests seed the row they expect to mutate.
func seedProduct(ctx context.Context, t *testing.T, dsn string) {
	t.Helper()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, `
		INSERT INTO products (id, title, body_html, product_type, category)
		VALUES ($1, $2, $3, $4, $5)`,
		"sku-1", "Original Title", "<p>original</p>", "Apparel", "Hats")
	require.NoError(t, err)
}
