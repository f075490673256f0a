// Package pipeline runs one PDF through line reconstruction, normalization,
// feature extraction, classification, scoring and post-processing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/classifier"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/features"
	"github.com/joseph-ayodele/invoice-extractor/internal/normalize"
	"github.com/joseph-ayodele/invoice-extractor/internal/postprocess"
	"github.com/joseph-ayodele/invoice-extractor/internal/reconstruct"
	"github.com/joseph-ayodele/invoice-extractor/internal/scoring"
)

// WordExtractor reads positioned words from a PDF.
type WordExtractor interface {
	Extract(ctx context.Context, path string) (entity.Document, error)
}

// Options are the per-document knobs.
type Options struct {
	ConfidenceThreshold float64
	RequiredFields      []constants.FieldType
	OptionalFields      []constants.FieldType
	Strict              bool
	Timeout             time.Duration
}

// DefaultRequiredFields is used when Options.RequiredFields is nil.
var DefaultRequiredFields = []constants.FieldType{
	constants.InvoiceNumber,
	constants.InvoiceDate,
	constants.IssuerName,
	constants.GrossTotal,
}

func DefaultOptions() Options {
	return Options{
		ConfidenceThreshold: 0.7,
		RequiredFields:      DefaultRequiredFields,
		Timeout:             2 * time.Minute,
	}
}

// Config wires the stages. Zero values take defaults.
type Config struct {
	Defaults    Options
	TopK        int
	Tolerance   decimal.Decimal
	DateLayouts []string
}

type Orchestrator struct {
	extractor   WordExtractor
	reconstruct *reconstruct.Reconstructor
	normalizer  *normalize.Normalizer
	features    *features.Extractor
	classifier  classifier.Port
	scorer      *scoring.Scorer
	cfg         Config
	logger      *slog.Logger
}

func New(
	extractor WordExtractor,
	normalizer *normalize.Normalizer,
	fx *features.Extractor,
	port classifier.Port,
	scorer *scoring.Scorer,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if normalizer == nil {
		normalizer = normalize.New(normalize.DefaultOptions(), logger)
	}
	if scorer == nil {
		scorer = scoring.New(scoring.Config{})
	}
	if cfg.Defaults.RequiredFields == nil {
		cfg.Defaults.RequiredFields = DefaultRequiredFields
	}
	return &Orchestrator{
		extractor:   extractor,
		reconstruct: reconstruct.New(logger),
		normalizer:  normalizer,
		features:    fx,
		classifier:  port,
		scorer:      scorer,
		cfg:         cfg,
		logger:      logger,
	}
}

// Defaults returns the options used for zero-valued fields of a call.
func (o *Orchestrator) Defaults() Options { return o.cfg.Defaults }

func (o *Orchestrator) resolve(opts Options) Options {
	d := o.cfg.Defaults
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if opts.RequiredFields == nil {
		opts.RequiredFields = d.RequiredFields
	}
	if opts.OptionalFields == nil {
		opts.OptionalFields = d.OptionalFields
	}
	if opts.Timeout <= 0 {
		opts.Timeout = d.Timeout
	}
	opts.Strict = opts.Strict || d.Strict
	return opts
}

// run tracks one document's state machine and stage timings.
type run struct {
	res    *entity.ExtractionResult
	mark   time.Time
	logger *slog.Logger
}

func (r *run) advance(next constants.ExtractionState) {
	if !r.res.State.CanTransition(next) {
		r.logger.Error("pipeline.state.invalid", "from", r.res.State, "to", next)
		return
	}
	now := time.Now()
	r.res.Timings = append(r.res.Timings, entity.StageTiming{Stage: next, Elapsed: now.Sub(r.mark)})
	r.mark = now
	r.res.State = next
	r.res.History = append(r.res.History, next)
}

// fail aborts the document: a single error and no fields.
func (r *run) fail(code string, err error) *entity.ExtractionResult {
	r.res.Fields = nil
	r.res.OverallConfidence = 0
	r.res.Errors = []entity.Issue{{Code: code, Message: err.Error(), Line: -1, Blocking: true}}
	r.res.Success = false
	r.advance(constants.StateFailed)
	r.res.Duration = time.Since(r.res.StartedAt)
	r.logger.Error("pipeline.document.failed", "code", code, "error", err, "elapsed_ms", r.res.Duration.Milliseconds())
	return r.res
}

// Extract runs the whole pipeline for one PDF. It never returns nil; failures
// are reported on the result.
func (o *Orchestrator) Extract(ctx context.Context, path string, opts Options) *entity.ExtractionResult {
	opts = o.resolve(opts)
	start := time.Now()
	res := &entity.ExtractionResult{
		DocumentID:    uuid.New(),
		SourcePath:    path,
		FeatureSchema: o.features.Schema().Version,
		State:         constants.StateStarted,
		History:       []constants.ExtractionState{constants.StateStarted},
		StartedAt:     start,
	}
	ctx = common.WithDocumentID(ctx, res.DocumentID.String())
	logger := o.logger.With("doc_id", res.DocumentID, "path", path)
	r := &run{res: res, mark: start, logger: logger}

	ctx, cancel := common.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	logger.Debug("pipeline.document.start", "timeout", opts.Timeout, "strict", opts.Strict)

	doc, err := o.readDocument(ctx, path)
	if err != nil {
		return r.fail(failureCode(ctx, common.CodeExtractor), fmt.Errorf("read %s: %w", path, err))
	}

	lines := o.reconstruct.Reconstruct(doc.Words())
	r.advance(constants.StateLinesReconstructed)

	physical, issues := o.normalizer.NormalizeEach(lines)
	nlines := o.normalizer.Reflow(physical)
	res.Warnings = append(res.Warnings, issues...)
	r.advance(constants.StateNormalized)

	vecs, issues := o.features.Extract(nlines, doc)
	res.Warnings = append(res.Warnings, issues...)
	// Merged lines may join separate fields; the physical lines are scored
	// too so post-processing can split them again.
	var pvecs []entity.FeatureVector
	if len(nlines) < len(physical) {
		pvecs, _ = o.features.Extract(physical, doc)
	}
	r.advance(constants.StateFeaturesExtracted)

	if err := ctx.Err(); err != nil {
		return r.fail(failureCode(ctx, common.CodeClassifier), err)
	}
	preds, err := o.classifier.PredictBatch(ctx, slices.Concat(vecs, pvecs))
	if err != nil {
		return r.fail(failureCode(ctx, common.CodeClassifier), fmt.Errorf("classify: %w", err))
	}
	if len(preds) != len(vecs)+len(pvecs) {
		return r.fail(common.CodeClassifier, fmt.Errorf("%w: classifier returned %d predictions for %d lines",
			common.ErrCollaborator, len(preds), len(vecs)+len(pvecs)))
	}
	res.ModelVersion = o.classifier.ActiveVersion()
	if len(preds) > 0 {
		res.ModelVersion = preds[0].ModelVersion
	}
	r.advance(constants.StateClassified)

	scored := o.scorer.AssessAll(preds, opts.ConfidenceThreshold)
	pp := postprocess.New(postprocess.Config{
		Required:    opts.RequiredFields,
		Optional:    opts.OptionalFields,
		Tolerance:   o.cfg.Tolerance,
		Strict:      opts.Strict,
		DateLayouts: o.cfg.DateLayouts,
		TopK:        o.cfg.TopK,
	}, logger)
	merged := postprocess.Layer{Lines: nlines, Vectors: vecs, Predictions: scored[:len(vecs)]}
	var split postprocess.Layer
	if len(pvecs) > 0 {
		split = postprocess.Layer{Lines: physical, Vectors: pvecs, Predictions: scored[len(vecs):]}
	}
	out := pp.Process(pp.ResolveLayers(merged, split))
	res.Fields = out.Fields
	res.Warnings = append(res.Warnings, out.Warnings...)
	res.Errors = append(res.Errors, out.Errors...)
	res.OverallConfidence = scoring.OverallConfidence(res.Fields, opts.RequiredFields)
	r.advance(constants.StatePostProcessed)

	res.Success = !res.HasBlockingErrors()
	if res.Success {
		r.advance(constants.StateSucceeded)
	} else {
		r.advance(constants.StateFailed)
	}
	res.Duration = time.Since(start)

	logger.Info("pipeline.document.done",
		"success", res.Success,
		"lines", len(nlines),
		"fields", resolvedCount(res.Fields),
		"warnings", len(res.Warnings),
		"errors", len(res.Errors),
		"confidence", res.OverallConfidence,
		"model_version", res.ModelVersion,
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res
}

// readDocument calls the extractor, turning a panic into an error.
func (o *Orchestrator) readDocument(ctx context.Context, path string) (doc entity.Document, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: extractor panic: %v", common.ErrCollaborator, rec)
		}
	}()
	doc, err = o.extractor.Extract(ctx, path)
	if err == nil {
		err = ctx.Err()
	}
	return doc, err
}

func failureCode(ctx context.Context, code string) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return common.CodeTimeout
	}
	return code
}

func resolvedCount(fields []entity.ExtractedField) int {
	n := 0
	for _, f := range fields {
		if f.Resolved {
			n++
		}
	}
	return n
}
