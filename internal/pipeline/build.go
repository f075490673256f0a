package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/classifier"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/features"
	"github.com/joseph-ayodele/invoice-extractor/internal/normalize"
	"github.com/joseph-ayodele/invoice-extractor/internal/patterns"
	"github.com/joseph-ayodele/invoice-extractor/internal/scoring"
)

// OptionsFromConfig converts the configured pipeline section.
func OptionsFromConfig(pc common.PipelineConfig) (Options, error) {
	required, unknown := constants.ParseFieldTypes(pc.RequiredFields)
	optional, unknownOpt := constants.ParseFieldTypes(pc.OptionalFields)
	if unknown = append(unknown, unknownOpt...); len(unknown) > 0 {
		return Options{}, fmt.Errorf("%w: unknown fields %s", common.ErrInvalidInput, strings.Join(unknown, ", "))
	}
	return Options{
		ConfidenceThreshold: pc.ConfidenceThreshold,
		RequiredFields:      required,
		OptionalFields:      optional,
		Strict:              pc.Strict,
		Timeout:             pc.DocumentTimeout,
	}, nil
}

// Build assembles an Orchestrator from configuration. The returned cleanup
// releases the classifier backend.
func Build(ctx context.Context, cfg *common.Config, extractor WordExtractor, logger *slog.Logger) (*Orchestrator, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	pc := cfg.Pipeline

	opts, err := OptionsFromConfig(pc)
	if err != nil {
		return nil, nil, err
	}
	tol := decimal.Decimal{}
	if pc.AmountTolerance != "" {
		if tol, err = decimal.NewFromString(pc.AmountTolerance); err != nil {
			return nil, nil, fmt.Errorf("%w: amount tolerance: %v", common.ErrInvalidInput, err)
		}
	}

	reg, err := patterns.LoadFile(cfg.Patterns.File, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("load patterns: %w", err)
	}
	for _, w := range reg.Warnings() {
		logger.Warn("pipeline.patterns.skipped", "code", w.Code, "message", w.Message)
	}

	fx := features.New(reg, features.Config{ContextWindow: pc.ContextWindow}, logger)
	port, cleanup, err := classifier.FromConfig(ctx, cfg.Classifier, fx.Schema(), pc.TopK, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("load classifier: %w", err)
	}

	n := pc.Normalization
	normalizer := normalize.New(normalize.Options{
		Unicode:       n.Unicode,
		Ligatures:     n.Ligatures,
		Quotes:        n.Quotes,
		Dashes:        n.Dashes,
		Decimals:      n.Decimals,
		Dates:         n.Dates,
		Whitespace:    n.Whitespace,
		MergeLines:    n.MergeLines,
		MergeGapRatio: n.MergeGapRatio,
	}, logger)
	scorer := scoring.New(scoring.Config{High: pc.HighThreshold, Low: pc.LowThreshold, TopK: pc.TopK})

	orch := New(extractor, normalizer, fx, port, scorer, Config{
		Defaults:    opts,
		TopK:        pc.TopK,
		Tolerance:   tol,
		DateLayouts: pc.DateLayouts,
	}, logger)

	logger.Info("pipeline.ready",
		"patterns", len(reg.Names()),
		"feature_schema", fx.Schema().Version,
		"model_version", port.ActiveVersion(),
		"required", opts.RequiredFields,
	)
	return orch, cleanup, nil
}
