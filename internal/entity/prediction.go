package entity

import "github.com/joseph-ayodele/invoice-extractor/constants"

// ClassScore is one label's score in a prediction.
type ClassScore struct {
	Label       constants.FieldType `json:"label"`
	Raw         float64             `json:"raw"`
	Probability float64             `json:"probability"`
	Rank        int                 `json:"rank"`
}

// PredictionResult is the classifier's answer for one feature vector.
// Scores are ordered by rank; Confidence is Scores[0].Probability.
type PredictionResult struct {
	Label        constants.FieldType `json:"label"`
	Confidence   float64             `json:"confidence"`
	Scores       []ClassScore        `json:"scores"`
	TopK         []ClassScore        `json:"top_k"`
	ModelVersion string              `json:"model_version"`
}

// ScoredPrediction adds the reviewer-facing assessment to a prediction.
type ScoredPrediction struct {
	PredictionResult
	Level                constants.ConfidenceLevel `json:"level"`
	RequiresManualReview bool                      `json:"requires_manual_review"`
	Alternatives         []ClassScore              `json:"alternatives,omitempty"`
}
