// Package features turns normalized lines into fixed-schema feature vectors.
package features

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/patterns"
)

// LineInput is what a custom group sees for one line.
type LineInput struct {
	Lines []entity.NormalizedLine
	Index int
	Page  PageGeometry
}

// Group is an additional, independently computed feature group. Compute
// returns values for a subset of Keys; missing keys are zero.
type Group struct {
	Name    string
	Keys    []string
	Compute func(LineInput) map[string]float64
}

type Config struct {
	ContextWindow int // lines on each side, default 2
	Groups        []Group
}

// Extractor is immutable after New and safe for concurrent use.
type Extractor struct {
	reg    *patterns.Registry
	cfg    Config
	schema Schema
	logger *slog.Logger
}

func New(reg *patterns.Registry, cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 2
	}
	var extra []string
	for _, g := range cfg.Groups {
		extra = append(extra, g.Keys...)
	}
	return &Extractor{
		reg:    reg,
		cfg:    cfg,
		schema: BuildSchema(reg.Names(), extra...),
		logger: logger,
	}
}

func (e *Extractor) Schema() Schema { return e.schema }

// Extract computes one vector per line. Vector.Line is the line's position in
// lines. A line whose extraction fails is dropped with a warning.
func (e *Extractor) Extract(lines []entity.NormalizedLine, doc entity.Document) ([]entity.FeatureVector, []entity.Issue) {
	geo := e.geometry(lines, doc)
	ranks := make([]int, len(lines))
	seen := map[int]int{}
	for i, l := range lines {
		ranks[i] = seen[l.Page]
		seen[l.Page]++
	}

	// Keyword hits are shared by a line and its neighbours' context features.
	kw := make([]string, len(lines))
	for i, l := range lines {
		kw[i] = keywordText(l.Text)
	}

	out := make([]entity.FeatureVector, 0, len(lines))
	var issues []entity.Issue
	for i := range lines {
		fv, err := e.extractLine(lines, kw, i, ranks[i], geo[lines[i].Page])
		if err != nil {
			e.logger.Warn("features.line.dropped", "line", lines[i].Index, "page", lines[i].Page, "error", err)
			issues = append(issues, entity.Issue{
				Code:    common.CodeFeatureLine,
				Message: err.Error(),
				Line:    lines[i].Index,
			})
			continue
		}
		out = append(out, fv)
	}
	return out, issues
}

func (e *Extractor) extractLine(lines []entity.NormalizedLine, kw []string, i, rank int, g PageGeometry) (fv entity.FeatureVector, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("feature extraction panicked: %v", r)
		}
	}()

	l := lines[i]
	values := make(map[string]float64, len(e.schema.Keys))
	for _, k := range e.schema.Keys {
		values[k] = 0
	}

	hits := RegexFeatures(e.reg, l.Text)
	for _, h := range hits {
		k := RegexKey(h.Pattern)
		values[k] = math.Max(values[k], h.Weight)
	}

	pos := PositionFeatures(l, rank, g)
	values[KeyPosX] = pos.RelX
	values[KeyPosY] = pos.RelY
	values[KeyPosW] = pos.RelW
	values[KeyPosH] = pos.RelH
	values[KeyPosRank] = pos.RelRank
	if g.PageCount > 1 {
		values[KeyPosPage] = float64(l.Page-1) / float64(g.PageCount-1)
	}
	if g.MedianFont > 0 && l.FontSize > 0 {
		values[KeyPosFontRel] = math.Min(l.FontSize/g.MedianFont, 4)
	}
	values[KeyPosTop] = boolf(g.Height > 0 && pos.RelY < 1.0/3)
	values[KeyPosBottom] = boolf(g.Height > 0 && pos.RelY > 2.0/3)
	values[KeyPosRight] = boolf(g.Width > 0 && pos.RelX >= 0.5)

	ctx := ContextFeatures(lines, i, e.cfg.ContextWindow)
	for _, f := range constants.ExtractableFields() {
		values[KeywordKey(f)] = boolf(hasKeyword(f, kw[i]))
		for k := 1; k <= e.cfg.ContextWindow; k++ {
			if j := i - k; j >= 0 && lines[j].Page == l.Page && hasKeyword(f, kw[j]) {
				values[PrevKeywordKey(f)] = 1
			}
			if j := i + k; j < len(lines) && lines[j].Page == l.Page && hasKeyword(f, kw[j]) {
				values[NextKeywordKey(f)] = 1
			}
		}
	}

	stats := TextStats(l.Text)
	values[KeyStatLength] = math.Min(float64(stats.Length)/80, 1)
	values[KeyStatTokens] = math.Min(float64(stats.Tokens)/10, 1)
	values[KeyStatDigits] = stats.DigitRatio
	values[KeyStatUpper] = stats.UpperRatio
	values[KeyStatAlpha] = stats.AlphaRatio
	values[KeyStatCurr] = boolf(stats.HasCurrency)
	values[KeyStatNumeric] = boolf(stats.Length > 0 && stats.AlphaRatio == 0 && stats.DigitRatio > 0)

	for _, grp := range e.cfg.Groups {
		in := LineInput{Lines: lines, Index: i, Page: g}
		for k, v := range grp.Compute(in) {
			if !e.schema.Has(k) {
				return entity.FeatureVector{}, fmt.Errorf("group %s produced key %q outside the schema", grp.Name, k)
			}
			values[k] = v
		}
	}

	return entity.FeatureVector{
		Line:          i,
		SchemaVersion: e.schema.Version,
		Values:        values,
		Regex:         hits,
		Position:      pos,
		Context:       ctx,
		Stats:         stats,
	}, nil
}

// geometry resolves page sizes from the document, falling back to the line
// extents when the extractor reported none.
func (e *Extractor) geometry(lines []entity.NormalizedLine, doc entity.Document) map[int]PageGeometry {
	out := map[int]PageGeometry{}
	fonts := map[int][]float64{}
	pageCount := len(doc.Pages)
	for _, l := range lines {
		g := out[l.Page]
		g.Lines++
		if g.Width == 0 && g.Height == 0 {
			g.Width, g.Height = doc.PageSize(l.Page)
		}
		out[l.Page] = g
		if l.FontSize > 0 {
			fonts[l.Page] = append(fonts[l.Page], l.FontSize)
		}
		pageCount = max(pageCount, l.Page)
	}
	for page, g := range out {
		if g.Width <= 0 || g.Height <= 0 {
			for _, l := range lines {
				if l.Page == page {
					g.Width = math.Max(g.Width, l.Box.Right())
					g.Height = math.Max(g.Height, l.Box.Bottom())
				}
			}
		}
		g.MedianFont = median(fonts[page])
		g.PageCount = pageCount
		out[page] = g
	}
	return out
}
