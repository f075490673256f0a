package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-extractor/constants"
)

// Issue is a warning or error accumulated during extraction. Line is -1 when
// the issue is not tied to a line.
type Issue struct {
	Code     string              `json:"code"`
	Message  string              `json:"message"`
	Field    constants.FieldType `json:"field,omitempty"`
	Line     int                 `json:"line"`
	Blocking bool                `json:"blocking"`
}

// Candidate is an alternative value for a field.
type Candidate struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Line       int     `json:"line"`
}

// ExtractedField is one resolved (or unresolved) invoice field.
type ExtractedField struct {
	Type                 constants.FieldType       `json:"type"`
	Value                string                    `json:"value,omitempty"`
	Resolved             bool                      `json:"resolved"`
	Confidence           float64                   `json:"confidence"`
	Level                constants.ConfidenceLevel `json:"level,omitempty"`
	RequiresManualReview bool                      `json:"requires_manual_review"`
	Alternatives         []Candidate               `json:"alternatives,omitempty"`
	SourceLine           int                       `json:"source_line"`
	SourcePage           int                       `json:"source_page"`
	Box                  BBox                      `json:"box"`
	Date                 *time.Time                `json:"date,omitempty"`
	Amount               *decimal.Decimal          `json:"amount,omitempty"`
}

type StageTiming struct {
	Stage   constants.ExtractionState `json:"stage"`
	Elapsed time.Duration             `json:"elapsed"`
}

// ExtractionResult is the whole-document outcome handed to callers.
type ExtractionResult struct {
	DocumentID        uuid.UUID                   `json:"document_id"`
	SourcePath        string                      `json:"source_path"`
	Fields            []ExtractedField            `json:"fields"`
	Warnings          []Issue                     `json:"warnings"`
	Errors            []Issue                     `json:"errors"`
	OverallConfidence float64                     `json:"overall_confidence"`
	ModelVersion      string                      `json:"model_version,omitempty"`
	FeatureSchema     string                      `json:"feature_schema,omitempty"`
	State             constants.ExtractionState   `json:"state"`
	History           []constants.ExtractionState `json:"history"`
	Timings           []StageTiming               `json:"timings"`
	StartedAt         time.Time                   `json:"started_at"`
	Duration          time.Duration               `json:"duration"`
	Success           bool                        `json:"success"`
}

// Field returns the field of type t, if present.
func (r *ExtractionResult) Field(t constants.FieldType) (ExtractedField, bool) {
	for _, f := range r.Fields {
		if f.Type == t {
			return f, true
		}
	}
	return ExtractedField{}, false
}

// Value returns the resolved value of t, or "".
func (r *ExtractionResult) Value(t constants.FieldType) string {
	if f, ok := r.Field(t); ok && f.Resolved {
		return f.Value
	}
	return ""
}

func (r *ExtractionResult) HasBlockingErrors() bool {
	for _, e := range r.Errors {
		if e.Blocking {
			return true
		}
	}
	return false
}

// NeedsReview reports whether any resolved field is flagged for manual review.
func (r *ExtractionResult) NeedsReview() bool {
	for _, f := range r.Fields {
		if f.Resolved && f.RequiresManualReview {
			return true
		}
	}
	return false
}
