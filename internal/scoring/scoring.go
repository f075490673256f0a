package scoring

import (
	"slices"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// Config holds the level thresholds. Zero values take the defaults.
type Config struct {
	High float64 // confidence >= High is high (default 0.8)
	Low  float64 // confidence < Low is low (default 0.3)
	TopK int     // alternatives kept per prediction (default 3)
}

func (c *Config) defaults() {
	if c.High <= 0 {
		c.High = 0.8
	}
	if c.Low <= 0 {
		c.Low = 0.3
	}
	if c.TopK <= 0 {
		c.TopK = 3
	}
}

// Scorer turns raw predictions into reviewer-facing assessments.
type Scorer struct {
	cfg Config
}

func New(cfg Config) *Scorer {
	cfg.defaults()
	return &Scorer{cfg: cfg}
}

func (s *Scorer) Config() Config { return s.cfg }

// Level buckets a confidence.
func (s *Scorer) Level(confidence float64) constants.ConfidenceLevel {
	switch {
	case confidence >= s.cfg.High:
		return constants.ConfidenceHigh
	case confidence < s.cfg.Low:
		return constants.ConfidenceLow
	default:
		return constants.ConfidenceMedium
	}
}

// NeedsReview is true for low confidence or when the document threshold is
// above the confidence.
func (s *Scorer) NeedsReview(confidence, threshold float64) bool {
	return s.Level(confidence) == constants.ConfidenceLow || threshold > confidence
}

// Assess scores one prediction against the document's confidence threshold.
func (s *Scorer) Assess(pred entity.PredictionResult, threshold float64) entity.ScoredPrediction {
	sp := entity.ScoredPrediction{
		PredictionResult:     pred,
		Level:                s.Level(pred.Confidence),
		RequiresManualReview: s.NeedsReview(pred.Confidence, threshold),
	}
	for _, c := range pred.Scores {
		if c.Label == pred.Label {
			continue
		}
		sp.Alternatives = append(sp.Alternatives, c)
		if len(sp.Alternatives) == s.cfg.TopK {
			break
		}
	}
	return sp
}

func (s *Scorer) AssessAll(preds []entity.PredictionResult, threshold float64) []entity.ScoredPrediction {
	out := make([]entity.ScoredPrediction, len(preds))
	for i, p := range preds {
		out[i] = s.Assess(p, threshold)
	}
	return out
}

// OverallConfidence is the mean confidence of the resolved fields listed in
// required, or 0 when none resolved.
func OverallConfidence(fields []entity.ExtractedField, required []constants.FieldType) float64 {
	var sum float64
	var n int
	for _, f := range fields {
		if !f.Resolved || !slices.Contains(required, f.Type) {
			continue
		}
		sum += f.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
