package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/duplicates"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// RecordStore persists invoice records. Save returns the reloaded canonical
// record and whether an existing one was updated.
type RecordStore interface {
	Save(ctx context.Context, rec entity.InvoiceRecord) (entity.InvoiceRecord, bool, error)
}

// RunStore tracks extraction runs.
type RunStore interface {
	Start(ctx context.Context, path, fileHash string) (uuid.UUID, error)
	Finish(ctx context.Context, id uuid.UUID, res *entity.ExtractionResult) error
}

// Outcome is what a processed file produced.
type Outcome struct {
	RunID     uuid.UUID                    `json:"run_id,omitempty"`
	Result    *entity.ExtractionResult     `json:"result"`
	Duplicate *entity.DuplicateCheckResult `json:"duplicate,omitempty"`
	Record    *entity.InvoiceRecord        `json:"record,omitempty"`
	Updated   bool                         `json:"updated"`
}

// Processor is the import flow around the orchestrator: run bookkeeping,
// duplicate check and saving successful extractions. Any collaborator may be
// nil to skip that step.
type Processor struct {
	orch     *Orchestrator
	runs     RunStore
	records  RecordStore
	detector *duplicates.Detector
	opts     Options
	logger   *slog.Logger
}

func NewProcessor(orch *Orchestrator, runs RunStore, records RecordStore, detector *duplicates.Detector, opts Options, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{orch: orch, runs: runs, records: records, detector: detector, opts: opts, logger: logger}
}

// ProcessFile extracts one file. The returned error covers bookkeeping and
// storage failures; extraction failures are on Outcome.Result.
func (p *Processor) ProcessFile(ctx context.Context, path, fileHash string) (Outcome, error) {
	var out Outcome
	if p.runs != nil {
		id, err := p.runs.Start(ctx, path, fileHash)
		if err != nil {
			return out, fmt.Errorf("start run: %w", err)
		}
		out.RunID = id
	}

	res := p.orch.Extract(ctx, path, p.opts)
	out.Result = res

	if p.runs != nil {
		if err := p.runs.Finish(ctx, out.RunID, res); err != nil {
			p.logger.Error("processor.run.finish_failed", "run_id", out.RunID, "error", err)
			return out, fmt.Errorf("finish run: %w", err)
		}
	}
	if !res.Success {
		p.logger.Warn("processor.extract.failed", "path", path, "errors", len(res.Errors))
		return out, nil
	}

	rec := ToRecord(res)
	rec.FileHash = fileHash

	if p.detector != nil {
		dup, err := p.detector.Check(ctx, rec)
		if err != nil {
			return out, fmt.Errorf("duplicate check: %w", err)
		}
		out.Duplicate = &dup
		// An exact match is a re-import and Save updates it in place.
		if dup.HasDuplicates && dup.MatchType != constants.MatchExact {
			rec.NeedsReview = true
		}
	}

	if p.records == nil {
		out.Record = &rec
		return out, nil
	}
	saved, updated, err := p.records.Save(ctx, rec)
	if err != nil {
		p.logger.Error("processor.save.failed", "path", path, "error", err)
		return out, fmt.Errorf("save record: %w", err)
	}
	out.Record = &saved
	out.Updated = updated
	p.logger.Info("processor.save.ok",
		"record_id", saved.ID,
		"invoice_number", saved.InvoiceNumber,
		"updated", updated,
		"needs_review", saved.NeedsReview,
	)
	return out, nil
}
