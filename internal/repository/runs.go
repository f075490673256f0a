package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// Run is one row of extraction_runs.
type Run struct {
	ID                uuid.UUID
	SourcePath        string
	FileHash          string
	Status            constants.ExtractionState
	Success           *bool
	DocumentID        string
	ModelVersion      string
	FeatureSchema     string
	OverallConfidence *float64
	Warnings          []entity.Issue
	Errors            []entity.Issue
	Result            json.RawMessage
	StartedAt         time.Time
	FinishedAt        *time.Time
	Duration          time.Duration
}

// RunRepository records every extraction attempt.
type RunRepository struct {
	db      *sql.DB
	dialect string
	logger  *slog.Logger
}

func (r *RunRepository) Start(ctx context.Context, path, fileHash string) (uuid.UUID, error) {
	id := uuid.New()
	q, args := entsql.Dialect(r.dialect).Insert(ExtractionRunsTable.Name).
		Columns("id", "source_path", "file_hash", "status", "started_at").
		Values(id, path, fileHash, string(constants.StateStarted), time.Now().UTC()).
		Query()
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		r.logger.Error("repository.run.start_failed", "path", path, "error", err)
		return uuid.Nil, fmt.Errorf("%w: start run: %v", common.ErrDatabase, err)
	}
	r.logger.Debug("repository.run.started", "run_id", id, "path", path)
	return id, nil
}

// Finish stores the terminal state and the full result of a run.
func (r *RunRepository) Finish(ctx context.Context, id uuid.UUID, res *entity.ExtractionResult) error {
	warnings, err := json.Marshal(res.Warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}
	errs, err := json.Marshal(res.Errors)
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}
	full, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	q, args := entsql.Dialect(r.dialect).Update(ExtractionRunsTable.Name).
		Set("status", string(res.State)).
		Set("success", res.Success).
		Set("document_id", res.DocumentID.String()).
		Set("model_version", res.ModelVersion).
		Set("feature_schema", res.FeatureSchema).
		Set("overall_confidence", res.OverallConfidence).
		Set("warnings", string(warnings)).
		Set("errors", string(errs)).
		Set("result", string(full)).
		Set("finished_at", time.Now().UTC()).
		Set("duration_ms", res.Duration.Milliseconds()).
		Where(entsql.EQ("id", id)).
		Query()
	out, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		r.logger.Error("repository.run.finish_failed", "run_id", id, "error", err)
		return fmt.Errorf("%w: finish run: %v", common.ErrDatabase, err)
	}
	if n, err := out.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: run %s", common.ErrNotFound, id)
	}
	if res.Success {
		r.logger.Info("repository.run.finished", "run_id", id, "status", res.State)
	} else {
		r.logger.Warn("repository.run.finished", "run_id", id, "status", res.State, "errors", len(res.Errors))
	}
	return nil
}

func (r *RunRepository) Get(ctx context.Context, id uuid.UUID) (Run, error) {
	b := entsql.Dialect(r.dialect)
	q, args := b.Select(columnNames(ExtractionRunsColumns)...).
		From(b.Table(ExtractionRunsTable.Name)).
		Where(entsql.EQ("id", id)).
		Query()

	var (
		run                         Run
		status                      string
		success                     sql.NullBool
		docID, model, schemaVersion sql.NullString
		confidence                  sql.NullFloat64
		warnings, errs, result      sql.NullString
		finished                    sql.NullTime
		duration                    sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, q, args...).Scan(
		&run.ID, &run.SourcePath, &run.FileHash, &status, &success, &docID, &model, &schemaVersion,
		&confidence, &warnings, &errs, &result, &run.StartedAt, &finished, &duration,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return run, fmt.Errorf("%w: run %s", common.ErrNotFound, id)
	}
	if err != nil {
		return run, fmt.Errorf("%w: get run: %v", common.ErrDatabase, err)
	}

	run.Status = constants.ExtractionState(status)
	run.DocumentID, run.ModelVersion, run.FeatureSchema = docID.String, model.String, schemaVersion.String
	if success.Valid {
		run.Success = &success.Bool
	}
	if confidence.Valid {
		run.OverallConfidence = &confidence.Float64
	}
	if finished.Valid {
		t := finished.Time.UTC()
		run.FinishedAt = &t
	}
	run.Duration = time.Duration(duration.Int64) * time.Millisecond
	if warnings.Valid {
		if err := json.Unmarshal([]byte(warnings.String), &run.Warnings); err != nil {
			return run, fmt.Errorf("decode warnings: %w", err)
		}
	}
	if errs.Valid {
		if err := json.Unmarshal([]byte(errs.String), &run.Errors); err != nil {
			return run, fmt.Errorf("decode errors: %w", err)
		}
	}
	if result.Valid {
		run.Result = json.RawMessage(result.String)
	}
	run.StartedAt = run.StartedAt.UTC()
	return run, nil
}
