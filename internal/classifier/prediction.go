package classifier

import (
	"fmt"
	"math"
	"sort"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// DefaultTopK is how many ranked scores a prediction carries in TopK.
const DefaultTopK = 3

// NewPrediction turns raw label scores into a ranked prediction. Probabilities
// are a softmax over raw; equal probabilities are ordered by label order.
func NewPrediction(labels []constants.FieldType, raw []float64, version string, topK int) (entity.PredictionResult, error) {
	if len(labels) == 0 {
		return entity.PredictionResult{}, fmt.Errorf("no labels")
	}
	if len(labels) != len(raw) {
		return entity.PredictionResult{}, fmt.Errorf("got %d scores for %d labels", len(raw), len(labels))
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	maxRaw := math.Inf(-1)
	for i, r := range raw {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return entity.PredictionResult{}, fmt.Errorf("score for %s is not finite", labels[i])
		}
		maxRaw = math.Max(maxRaw, r)
	}

	var sum float64
	exps := make([]float64, len(raw))
	for i, r := range raw {
		exps[i] = math.Exp(r - maxRaw)
		sum += exps[i]
	}

	scores := make([]entity.ClassScore, len(labels))
	for i, l := range labels {
		p := exps[i] / sum
		scores[i] = entity.ClassScore{Label: l, Raw: raw[i], Probability: math.Min(1, math.Max(0, p))}
	}

	sort.SliceStable(scores, func(a, b int) bool {
		if scores[a].Probability != scores[b].Probability {
			return scores[a].Probability > scores[b].Probability
		}
		return labelOrder(scores[a].Label) < labelOrder(scores[b].Label)
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}

	k := min(topK, len(scores))
	top := make([]entity.ClassScore, k)
	copy(top, scores[:k])

	return entity.PredictionResult{
		Label:        scores[0].Label,
		Confidence:   scores[0].Probability,
		Scores:       scores,
		TopK:         top,
		ModelVersion: version,
	}, nil
}

func labelOrder(f constants.FieldType) int {
	if i := f.Index(); i >= 0 {
		return i
	}
	return math.MaxInt
}
