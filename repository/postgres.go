package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mediaPipeline/database"
	"mediaPipeline/pipeline"
)

//go:embed schema.sql
var Schema string

const (
	uniqueViolation     = "23505"
	activePipelineIndex = "pipelines_one_active_per_project"
	pipelineColumns     = `id, project_id, user_id, pipeline_type, mode, status, config, steps_state, COALESCE(current_step, ''), current_step_progress, error_message, started_at, completed_at, created_at, updated_at`
	assetColumns        = `id, pipeline_id, step_id, kind, idx, correlation_token, external_id, status, url, error, created_at, completed_at`
	selectPipelineByID  = `SELECT ` + pipelineColumns + ` FROM pipelines WHERE id = $1`
	selectAssetByToken  = `SELECT ` + assetColumns + ` FROM assets WHERE correlation_token = $1`
)

type PostgresRepo struct {
	db *database.DB
}

func NewPostgresRepo(db *database.DB) Repository {
	return &PostgresRepo{db: db}
}

// Migrate applies the embedded schema. Statements are idempotent.
func Migrate(ctx context.Context, db *database.DB) error {
	if _, err := db.Pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *PostgresRepo) CreatePipeline(ctx context.Context, p *pipeline.Pipeline) error {
	config, steps, err := encodePipeline(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO pipelines (id, project_id, user_id, pipeline_type, mode, status, config, steps_state, current_step, current_step_progress, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11)
		RETURNING created_at, updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query,
		p.ID,
		p.ProjectID,
		p.UserID,
		p.Type,
		p.Mode,
		p.Status,
		config,
		steps,
		p.CurrentStep,
		p.CurrentStepProgress,
		p.ErrorMessage,
	).Scan(&p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == activePipelineIndex {
				return pipeline.ErrActivePipelineExists
			}
			return ErrAlreadyExists
		}
		return err
	}

	return nil
}

func (r *PostgresRepo) GetPipeline(ctx context.Context, id string) (*pipeline.Pipeline, error) {
	p, err := scanPipeline(r.db.Pool.QueryRow(ctx, selectPipelineByID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.ErrPipelineNotFound
		}
		return nil, err
	}
	return p, nil
}

// UpdatePipeline runs fn against a row locked with SELECT ... FOR UPDATE so
// concurrent mutations of the same pipeline serialise.
func (r *PostgresRepo) UpdatePipeline(ctx context.Context, id string, fn MutateFunc) (*pipeline.Pipeline, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p, err := scanPipeline(tx.QueryRow(ctx, selectPipelineByID+` FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.ErrPipelineNotFound
		}
		return nil, err
	}

	if err := fn(p); err != nil {
		if errors.Is(err, pipeline.ErrNoChange) {
			return p, nil
		}
		return nil, err
	}

	config, steps, err := encodePipeline(p)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE pipelines
		SET status = $1, config = $2, steps_state = $3, current_step = NULLIF($4, ''),
		    current_step_progress = $5, error_message = $6, started_at = $7, completed_at = $8,
		    updated_at = NOW()
		WHERE id = $9
		RETURNING updated_at
	`

	err = tx.QueryRow(ctx, query,
		p.Status,
		config,
		steps,
		p.CurrentStep,
		p.CurrentStepProgress,
		p.ErrorMessage,
		p.StartedAt,
		p.CompletedAt,
		p.ID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepo) ListStalePipelines(ctx context.Context, status pipeline.Status, updatedBefore time.Time) ([]*pipeline.Pipeline, error) {
	query := `SELECT ` + pipelineColumns + ` FROM pipelines WHERE status = $1 AND updated_at < $2 ORDER BY updated_at`

	rows, err := r.db.Pool.Query(ctx, query, status, updatedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*pipeline.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CreateAsset(ctx context.Context, a *pipeline.Asset) error {
	query := `
		INSERT INTO assets (id, pipeline_id, step_id, kind, idx, correlation_token, external_id, status, url, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		a.ID,
		a.PipelineID,
		a.StepID,
		a.Kind,
		a.Index,
		a.CorrelationToken,
		a.ExternalID,
		a.Status,
		a.URL,
		a.Error,
	).Scan(&a.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *PostgresRepo) GetAssetByToken(ctx context.Context, token string) (*pipeline.Asset, error) {
	a, err := scanAsset(r.db.Pool.QueryRow(ctx, selectAssetByToken, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.ErrAssetNotFound
		}
		return nil, err
	}
	return a, nil
}

func (r *PostgresRepo) UpdateAssetByToken(ctx context.Context, token string, fn AssetMutateFunc) (*pipeline.Asset, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	a, err := scanAsset(tx.QueryRow(ctx, selectAssetByToken+` FOR UPDATE`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipeline.ErrAssetNotFound
		}
		return nil, err
	}

	owner, err := scanPipeline(tx.QueryRow(ctx, selectPipelineByID, a.PipelineID))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	if err := fn(a, owner); err != nil {
		if errors.Is(err, pipeline.ErrNoChange) {
			return a, nil
		}
		return nil, err
	}

	query := `
		UPDATE assets
		SET external_id = $1, status = $2, url = $3, error = $4, completed_at = $5
		WHERE correlation_token = $6
	`
	if _, err := tx.Exec(ctx, query, a.ExternalID, a.Status, a.URL, a.Error, a.CompletedAt, token); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *PostgresRepo) ListAssets(ctx context.Context, pipelineID string) ([]*pipeline.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE pipeline_id = $1 ORDER BY created_at, idx`

	rows, err := r.db.Pool.Query(ctx, query, pipelineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*pipeline.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) AppendAuditLog(ctx context.Context, e *pipeline.AuditLogEntry) error {
	var data []byte
	if e.Data != nil {
		var err error
		if data, err = json.Marshal(e.Data); err != nil {
			return fmt.Errorf("marshal audit data: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (pipeline_id, step_id, level, message, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	return r.db.Pool.QueryRow(ctx, query, e.PipelineID, e.StepID, e.Level, e.Message, data).Scan(&e.ID, &e.CreatedAt)
}

func (r *PostgresRepo) ListAuditLogs(ctx context.Context, pipelineID string) ([]*pipeline.AuditLogEntry, error) {
	query := `SELECT id, pipeline_id, step_id, level, message, data, created_at FROM audit_logs WHERE pipeline_id = $1 ORDER BY id`

	rows, err := r.db.Pool.Query(ctx, query, pipelineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*pipeline.AuditLogEntry
	for rows.Next() {
		var e pipeline.AuditLogEntry
		var data []byte
		if err := rows.Scan(&e.ID, &e.PipelineID, &e.StepID, &e.Level, &e.Message, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("decode audit data: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func encodePipeline(p *pipeline.Pipeline) (config, steps []byte, err error) {
	if config, err = json.Marshal(p.Config); err != nil {
		return nil, nil, fmt.Errorf("marshal config: %w", err)
	}
	if steps, err = json.Marshal(p.StepsState); err != nil {
		return nil, nil, fmt.Errorf("marshal steps state: %w", err)
	}
	return config, steps, nil
}

func scanPipeline(row pgx.Row) (*pipeline.Pipeline, error) {
	var p pipeline.Pipeline
	var config, steps []byte

	err := row.Scan(
		&p.ID,
		&p.ProjectID,
		&p.UserID,
		&p.Type,
		&p.Mode,
		&p.Status,
		&config,
		&steps,
		&p.CurrentStep,
		&p.CurrentStepProgress,
		&p.ErrorMessage,
		&p.StartedAt,
		&p.CompletedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(config, &p.Config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := json.Unmarshal(steps, &p.StepsState); err != nil {
		return nil, fmt.Errorf("decode steps state: %w", err)
	}
	return &p, nil
}

func scanAsset(row pgx.Row) (*pipeline.Asset, error) {
	var a pipeline.Asset
	err := row.Scan(
		&a.ID,
		&a.PipelineID,
		&a.StepID,
		&a.Kind,
		&a.Index,
		&a.CorrelationToken,
		&a.ExternalID,
		&a.Status,
		&a.URL,
		&a.Error,
		&a.CreatedAt,
		&a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
