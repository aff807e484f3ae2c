// Package postgres is the reference persistence adapter implementation,
// built directly on pgx rather than the teacher's ent-generated client
// (ent requires codegen this repository cannot run; see DESIGN.md). Schema
// bootstrap uses golang-migrate against embedded SQL files, the same way
// the teacher's pkg/database/client.go wires migrations.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/catalogops/enrichment-pipeline/pkg/models"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	stdpgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config configures the connection pool.
type Config struct {
	DSN             string
	MaxOpenConns    int32
	MaxIdleConns    int32
	ConnMaxLifetime time.Duration
}

// Store is the Postgres-backed implementation of store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres, configures the pool, and runs pending
// migrations before returning.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = cfg.MaxOpenConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	if err := runMigrations(cfg.DSN); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{pool: pool}, nil
}

func runMigrations(dsn string) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	dbDriver, err := pgx.WithInstance(db, &pgx.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "pgx", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, body_html, product_type, category, tags
		FROM products WHERE id = $1`, id)

	var p models.Product
	var tags []string
	if err := row.Scan(&p.ID, &p.Title, &p.BodyHTML, &p.ProductType, &p.Category, &tags); err != nil {
		if err == stdpgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get product %q: %w", id, err)
	}
	p.Tags = tags
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	i := 1
	for col, val := range fields {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, val)
		i++
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE products SET %s WHERE id = $%d", joinComma(setClauses), i)
	_, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update product %q: %w", id, err)
	}
	return nil
}

func (s *Store) ReplaceProductTags(ctx context.Context, id string, tags []string) error {
	_, err := s.pool.Exec(ctx, `UPDATE products SET tags = $1 WHERE id = $2`, tags, id)
	if err != nil {
		return fmt.Errorf("replace tags for %q: %w", id, err)
	}
	return nil
}

func (s *Store) AppendChangeLog(ctx context.Context, entry models.ChangeLogEntry) error {
	oldJSON, err := json.Marshal(entry.Old)
	if err != nil {
		return fmt.Errorf("marshal old snapshot: %w", err)
	}
	newJSON, err := json.Marshal(entry.New)
	if err != nil {
		return fmt.Errorf("marshal new snapshot: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO change_log (product_id, field, old, new, source, created_at, reviewed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ProductID, entry.Field, oldJSON, newJSON, entry.Source, entry.CreatedAt, entry.Reviewed)
	if err != nil {
		return fmt.Errorf("append change log for %q: %w", entry.ProductID, err)
	}
	return nil
}

func (s *Store) CreatePipelineRun(ctx context.Context, taskType models.TaskType, total int) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO pipeline_runs (task_type, status, start_time, total, processed, failed)
		VALUES ($1, $2, $3, $4, 0, 0)
		RETURNING id`,
		taskType, models.RunRunning, time.Now(), total).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create pipeline run: %w", err)
	}
	return id, nil
}

func (s *Store) UpdatePipelineRun(ctx context.Context, runID string, processed, failed *int, status *models.RunStatus) error {
	setClauses := []string{}
	args := []any{}
	i := 1
	if processed != nil {
		setClauses = append(setClauses, fmt.Sprintf("processed = $%d", i))
		args = append(args, *processed)
		i++
	}
	if failed != nil {
		setClauses = append(setClauses, fmt.Sprintf("failed = $%d", i))
		args = append(args, *failed)
		i++
	}
	if status != nil {
		setClauses = append(setClauses, fmt.Sprintf("status = $%d", i))
		args = append(args, *status)
		i++
	}
	if len(setClauses) == 0 {
		return nil
	}
	args = append(args, runID)

	query := fmt.Sprintf("UPDATE pipeline_runs SET %s WHERE id = $%d", joinComma(setClauses), i)
	_, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update pipeline run %q: %w", runID, err)
	}
	return nil
}

func (s *Store) CompletePipelineRun(ctx context.Context, runID string, status models.RunStatus, processed, failed int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pipeline_runs SET status = $1, processed = $2, failed = $3, end_time = $4
		WHERE id = $5`,
		status, processed, failed, time.Now(), runID)
	if err != nil {
		return fmt.Errorf("complete pipeline run %q: %w", runID, err)
	}
	return nil
}

func (s *Store) RecentPipelineRuns(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_type, status, start_time, end_time, total, processed, failed
		FROM pipeline_runs ORDER BY start_time DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []models.PipelineRun
	for rows.Next() {
		var r models.PipelineRun
		if err := rows.Scan(&r.ID, &r.TaskType, &r.Status, &r.StartTime, &r.EndTime, &r.Total, &r.Processed, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan pipeline run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
