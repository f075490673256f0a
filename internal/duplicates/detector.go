package duplicates

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// Field names reported in DuplicateMatch.MatchedOn.
const (
	OnInvoiceNumber = "invoice_number"
	OnIssuer        = "issuer_name"
	OnDate          = "invoice_date"
	OnGross         = "gross_total"
)

// RecordSource yields stored records that could duplicate rec. It may return
// a superset; the detector applies the match rule itself.
type RecordSource interface {
	FindCandidates(ctx context.Context, rec entity.InvoiceRecord) ([]entity.InvoiceRecord, error)
}

// Policy scores a match given the fields it agreed on.
type Policy interface {
	Name() string
	Score(matchedOn []string) float64
}

// FixedScore gives every match the same score.
type FixedScore struct {
	Value float64
}

func (p FixedScore) Name() string { return "fixed" }

func (p FixedScore) Score([]string) float64 {
	if p.Value <= 0 {
		return 0.9
	}
	return p.Value
}

// WeightedOverlap sums per-field weights of the agreeing fields.
type WeightedOverlap struct {
	Weights map[string]float64
}

var defaultWeights = map[string]float64{
	OnInvoiceNumber: 0.5,
	OnIssuer:        0.2,
	OnDate:          0.15,
	OnGross:         0.15,
}

func (p WeightedOverlap) Name() string { return "weighted" }

func (p WeightedOverlap) Score(matchedOn []string) float64 {
	w := p.Weights
	if w == nil {
		w = defaultWeights
	}
	var s float64
	for _, f := range matchedOn {
		s += w[f]
	}
	return min(s, 1)
}

// PolicyByName maps a configured policy name.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "fixed":
		return FixedScore{}, nil
	case "weighted":
		return WeightedOverlap{}, nil
	default:
		return nil, fmt.Errorf("unknown duplicate policy %q", name)
	}
}

// Detector flags stored records that share the invoice number, or both the
// issuer and the invoice date, with a candidate.
type Detector struct {
	source RecordSource
	policy Policy
	logger *slog.Logger
}

func New(source RecordSource, policy Policy, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == nil {
		policy = FixedScore{}
	}
	return &Detector{source: source, policy: policy, logger: logger}
}

func (d *Detector) Check(ctx context.Context, rec entity.InvoiceRecord) (entity.DuplicateCheckResult, error) {
	res := entity.DuplicateCheckResult{MatchType: constants.MatchNone}

	stored, err := d.source.FindCandidates(ctx, rec)
	if err != nil {
		return res, fmt.Errorf("find candidates: %w", err)
	}

	full := false
	for _, s := range stored {
		if s.ID != uuid.Nil && s.ID == rec.ID {
			continue
		}
		on, ok := Compare(rec, s)
		if !ok {
			continue
		}
		score := d.policy.Score(on)
		res.Matches = append(res.Matches, entity.DuplicateMatch{Record: s, Score: score, MatchedOn: on})
		res.SimilarityScore = max(res.SimilarityScore, score)
		full = full || len(on) == len(defaultWeights)
	}
	if len(res.Matches) == 0 {
		return res, nil
	}

	sort.SliceStable(res.Matches, func(i, j int) bool {
		return res.Matches[i].Score > res.Matches[j].Score
	})
	res.HasDuplicates = true
	res.MatchType = matchType(res.SimilarityScore, full)

	d.logger.Info("duplicates.found",
		"invoice_number", rec.InvoiceNumber,
		"matches", len(res.Matches),
		"score", res.SimilarityScore,
		"match_type", res.MatchType,
		"policy", d.policy.Name(),
	)
	return res, nil
}

func matchType(score float64, full bool) constants.MatchType {
	switch {
	case full || score >= 0.95:
		return constants.MatchExact
	case score >= 0.6:
		return constants.MatchSimilar
	case score > 0:
		return constants.MatchPotential
	default:
		return constants.MatchNone
	}
}

// Compare applies the match rule and lists the fields a and b agree on.
func Compare(a, b entity.InvoiceRecord) ([]string, bool) {
	var on []string
	number := a.InvoiceNumber != "" && foldNumber(a.InvoiceNumber) == foldNumber(b.InvoiceNumber)
	issuer := a.IssuerName != "" && foldName(a.IssuerName) == foldName(b.IssuerName)
	date := a.InvoiceDate != nil && b.InvoiceDate != nil && sameDay(*a.InvoiceDate, *b.InvoiceDate)
	gross := a.GrossTotal != nil && b.GrossTotal != nil && a.GrossTotal.Equal(*b.GrossTotal)

	if number {
		on = append(on, OnInvoiceNumber)
	}
	if issuer {
		on = append(on, OnIssuer)
	}
	if date {
		on = append(on, OnDate)
	}
	if gross {
		on = append(on, OnGross)
	}
	return on, number || (issuer && date)
}

func foldNumber(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func foldName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// MemorySource is an in-process RecordSource.
type MemorySource struct {
	mu      sync.RWMutex
	records []entity.InvoiceRecord
}

func NewMemorySource(records ...entity.InvoiceRecord) *MemorySource {
	return &MemorySource{records: records}
}

func (m *MemorySource) Add(rec entity.InvoiceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

func (m *MemorySource) FindCandidates(_ context.Context, _ entity.InvoiceRecord) ([]entity.InvoiceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]entity.InvoiceRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}
