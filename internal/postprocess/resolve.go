package postprocess

import (
	"sort"
	"strings"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

type candidate struct {
	line  entity.NormalizedLine
	fv    entity.FeatureVector
	pred  entity.ScoredPrediction
	value string
}

// Layer is one reading of a document: lines with their vectors and scored
// predictions. Vectors[i] and Predictions[i] describe Lines[Vectors[i].Line].
type Layer struct {
	Lines       []entity.NormalizedLine
	Vectors     []entity.FeatureVector
	Predictions []entity.ScoredPrediction
}

func (l Layer) candidates() []candidate {
	var out []candidate
	for i, fv := range l.Vectors {
		if i >= len(l.Predictions) || fv.Line < 0 || fv.Line >= len(l.Lines) {
			continue
		}
		pr := l.Predictions[i]
		if pr.Label == constants.Other || !pr.Label.Valid() {
			continue
		}
		out = append(out, candidate{line: l.Lines[fv.Line], fv: fv, pred: pr})
	}
	return out
}

// Resolve picks, for every wanted field, the most confident line labelled
// with it. Wanted fields with no candidate are returned unresolved.
func (p *Processor) Resolve(lines []entity.NormalizedLine, fvs []entity.FeatureVector, preds []entity.ScoredPrediction) []entity.ExtractedField {
	return p.ResolveLayers(Layer{Lines: lines, Vectors: fvs, Predictions: preds}, Layer{})
}

// ResolveLayers resolves fields from merged lines. physical holds the same
// lines before merging; a merged line whose physical lines were labelled with
// more than one field is replaced by those physical lines.
func (p *Processor) ResolveLayers(merged, physical Layer) []entity.ExtractedField {
	cands := merged.candidates()
	if len(physical.Lines) > 0 {
		cands = p.split(cands, merged.Lines, physical.candidates())
	}

	byLabel := map[constants.FieldType][]candidate{}
	for _, c := range cands {
		c.value = valueFor(c.pred.Label, c.line.Text, c.fv.Regex)
		if c.value == "" {
			continue
		}
		byLabel[c.pred.Label] = append(byLabel[c.pred.Label], c)
	}
	for _, cs := range byLabel {
		sort.SliceStable(cs, func(a, b int) bool {
			if cs[a].pred.Confidence != cs[b].pred.Confidence {
				return cs[a].pred.Confidence > cs[b].pred.Confidence
			}
			return cs[a].line.Index < cs[b].line.Index
		})
	}

	wanted := p.wanted()
	out := make([]entity.ExtractedField, 0, len(wanted))
	index := map[constants.FieldType]int{}
	for _, f := range wanted {
		index[f] = len(out)
		cs := byLabel[f]
		if len(cs) == 0 {
			out = append(out, entity.ExtractedField{Type: f, SourceLine: -1})
			continue
		}
		out = append(out, p.field(f, cs[0], cs[1:]))
	}

	// A companion is read off its owner's line when it has no line of its own.
	for _, f := range wanted {
		cs := byLabel[f]
		if len(cs) == 0 {
			continue
		}
		for _, comp := range f.Companions() {
			i, ok := index[comp]
			if !ok || out[i].Resolved {
				continue
			}
			v := valueFor(comp, cs[0].line.Text, cs[0].fv.Regex)
			if v == "" {
				continue
			}
			c := cs[0]
			c.value = v
			out[i] = p.field(comp, c, nil)
		}
	}
	return out
}

// split drops candidates on merged lines that joined differently labelled
// physical lines and adds the physical candidates in their place.
func (p *Processor) split(cands []candidate, merged []entity.NormalizedLine, physical []candidate) []candidate {
	owner := map[int]int{}
	for _, l := range merged {
		if len(l.MergedFrom) < 2 {
			continue
		}
		for _, idx := range l.MergedFrom {
			owner[idx] = l.Index
		}
	}
	labels := map[int]map[constants.FieldType]bool{}
	for _, c := range physical {
		m, ok := owner[c.line.Index]
		if !ok {
			continue
		}
		if labels[m] == nil {
			labels[m] = map[constants.FieldType]bool{}
		}
		labels[m][c.pred.Label] = true
	}
	broken := map[int]bool{}
	for m, set := range labels {
		if len(set) > 1 {
			broken[m] = true
		}
	}
	if len(broken) == 0 {
		return cands
	}

	out := make([]candidate, 0, len(cands)+len(physical))
	for _, c := range cands {
		if !broken[c.line.Index] {
			out = append(out, c)
		}
	}
	for _, c := range physical {
		if m, ok := owner[c.line.Index]; ok && broken[m] {
			out = append(out, c)
		}
	}
	p.logger.Debug("postprocess.lines.split", "merged_lines", len(broken))
	return out
}

func (p *Processor) field(f constants.FieldType, best candidate, rest []candidate) entity.ExtractedField {
	ef := entity.ExtractedField{
		Type:                 f,
		Value:                best.value,
		Resolved:             true,
		Confidence:           best.pred.Confidence,
		Level:                best.pred.Level,
		RequiresManualReview: best.pred.RequiresManualReview,
		SourceLine:           best.line.Index,
		SourcePage:           best.line.Page,
		Box:                  best.line.Box,
	}
	for _, c := range rest {
		if len(ef.Alternatives) == p.cfg.TopK {
			break
		}
		ef.Alternatives = append(ef.Alternatives, entity.Candidate{Value: c.value, Confidence: c.pred.Confidence, Line: c.line.Index})
	}
	return ef
}

func (p *Processor) wanted() []constants.FieldType {
	if len(p.cfg.Required) == 0 && len(p.cfg.Optional) == 0 {
		return constants.ExtractableFields()
	}
	var out []constants.FieldType
	seen := map[constants.FieldType]bool{}
	for _, f := range append(append([]constants.FieldType{}, p.cfg.Required...), p.cfg.Optional...) {
		if f == constants.Other || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// valueFor cuts the field's value out of a line using the pattern hits.
func valueFor(f constants.FieldType, text string, hits []entity.RegexHit) string {
	switch f {
	case constants.InvoiceNumber:
		if g := firstGroup(hits, "invoice_number", 0); g != "" {
			return g
		}
	case constants.InvoiceDate:
		if h, ok := firstHit(hits, "date"); ok {
			return h.Text
		}
		if h, ok := firstHit(hits, "iso_date"); ok {
			return h.Text
		}
	case constants.NetTotal, constants.VatTotal, constants.GrossTotal:
		if g := lastGroup(hits, "currency_amount", 0); g != "" {
			return g
		}
	case constants.IssuerPostalCode:
		if g := firstGroup(hits, "postal_code_city", 0); g != "" {
			return g
		}
	case constants.IssuerCity:
		if g := firstGroup(hits, "postal_code_city", 1); g != "" {
			return g
		}
	case constants.IssuerStreet:
		if h, ok := firstHit(hits, "street"); ok {
			return strings.TrimSpace(h.Text)
		}
	case constants.IssuerCountry:
		if h, ok := firstHit(hits, "country"); ok {
			return h.Text
		}
	}
	return afterLabel(f, text)
}

// afterLabel drops a leading "Label:" from text.
func afterLabel(f constants.FieldType, text string) string {
	text = strings.TrimSpace(text)
	if f == constants.IssuerName || f == constants.IssuerStreet {
		return text
	}
	if i := strings.IndexAny(text, ":#"); i >= 0 && i < len(text)-1 {
		return strings.TrimSpace(text[i+1:])
	}
	return text
}

func firstHit(hits []entity.RegexHit, pattern string) (entity.RegexHit, bool) {
	for _, h := range hits {
		if h.Pattern == pattern {
			return h, true
		}
	}
	return entity.RegexHit{}, false
}

func firstGroup(hits []entity.RegexHit, pattern string, g int) string {
	for _, h := range hits {
		if h.Pattern == pattern && g < len(h.Groups) && h.Groups[g] != "" {
			return h.Groups[g]
		}
	}
	return ""
}

func lastGroup(hits []entity.RegexHit, pattern string, g int) string {
	for i := len(hits) - 1; i >= 0; i-- {
		h := hits[i]
		if h.Pattern == pattern && g < len(h.Groups) && h.Groups[g] != "" {
			return h.Groups[g]
		}
	}
	return ""
}
