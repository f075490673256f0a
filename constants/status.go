package constants

// ExtractionState is a step in a document's extraction lifecycle.
// Stored verbatim in extraction_runs.status.
type ExtractionState string

const (
	StateStarted            ExtractionState = "STARTED"
	StateLinesReconstructed ExtractionState = "LINES_RECONSTRUCTED"
	StateNormalized         ExtractionState = "NORMALIZED"
	StateFeaturesExtracted  ExtractionState = "FEATURES_EXTRACTED"
	StateClassified         ExtractionState = "CLASSIFIED"
	StatePostProcessed      ExtractionState = "POST_PROCESSED"
	StateSucceeded          ExtractionState = "SUCCEEDED"
	StateFailed             ExtractionState = "FAILED"
)

var stateOrder = []ExtractionState{
	StateStarted,
	StateLinesReconstructed,
	StateNormalized,
	StateFeaturesExtracted,
	StateClassified,
	StatePostProcessed,
}

// Terminal reports whether no further transition is allowed.
func (s ExtractionState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// CanTransition reports whether next may follow s. Any non-terminal state may
// fail; otherwise states advance strictly one step, and only PostProcessed may
// succeed.
func (s ExtractionState) CanTransition(next ExtractionState) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	if next == StateSucceeded {
		return s == StatePostProcessed
	}
	for i, st := range stateOrder {
		if st == s {
			return i+1 < len(stateOrder) && stateOrder[i+1] == next
		}
	}
	return false
}

// ConfidenceLevel buckets a probability for reviewers.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// MatchType classifies a duplicate check outcome.
type MatchType string

const (
	MatchNone      MatchType = "none"
	MatchPotential MatchType = "potential"
	MatchSimilar   MatchType = "similar"
	MatchExact     MatchType = "exact"
)
