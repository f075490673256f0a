// Package normalize canonicalizes line text and reflows lines that a layout
// split in two.
package normalize

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// Normalizer is immutable after New and safe for concurrent use.
type Normalizer struct {
	opts   Options
	passes []Pass
	logger *slog.Logger
}

// New builds a Normalizer. Extra passes run after the built-in ones.
func New(opts Options, logger *slog.Logger, extra ...Pass) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MergeGapRatio <= 0 {
		opts.MergeGapRatio = 0.5
	}
	return &Normalizer{
		opts:   opts,
		passes: append(opts.passes(), extra...),
		logger: logger,
	}
}

// Apply runs every enabled pass in order and returns the text together with
// the names of the passes that changed it. If a pass fails, Apply returns the
// input unchanged with a non-nil error.
func (n *Normalizer) Apply(text string) (string, []string, error) {
	out := text
	var ops []string
	for _, p := range n.passes {
		next, err := runPass(p, out)
		if err != nil {
			n.logger.Warn("normalize.pass.recovered", "pass", p.Name, "error", err)
			return text, nil, err
		}
		if next != out {
			ops = append(ops, p.Name)
			out = next
		}
	}
	return out, ops, nil
}

// Normalize never fails: on error it returns text unchanged.
func (n *Normalizer) Normalize(text string) string {
	out, _, _ := n.Apply(text)
	return out
}

func runPass(p Pass, in string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pass %s panicked: %v", p.Name, r)
		}
	}()
	return p.Apply(in), nil
}

// NormalizeLine canonicalizes one line. A failed pass leaves the original text
// in place and yields a non-blocking issue.
func (n *Normalizer) NormalizeLine(l entity.TextLine) (entity.NormalizedLine, *entity.Issue) {
	text, ops, err := n.Apply(l.Text)
	nl := entity.NormalizedLine{
		Text:       text,
		Original:   l.Text,
		Box:        l.Box,
		Page:       l.Page,
		Index:      l.Index,
		FontSize:   l.FontSize,
		Operations: ops,
		MergedFrom: []int{l.Index},
	}
	if err != nil {
		return nl, &entity.Issue{
			Code:    common.CodeNormalizePass,
			Message: err.Error(),
			Line:    l.Index,
		}
	}
	return nl, nil
}

// NormalizeLines normalizes every line and, when enabled, merges broken ones.
func (n *Normalizer) NormalizeLines(lines []entity.TextLine) ([]entity.NormalizedLine, []entity.Issue) {
	out, issues := n.NormalizeEach(lines)
	return n.Reflow(out), issues
}

// NormalizeEach normalizes every line and never merges.
func (n *Normalizer) NormalizeEach(lines []entity.TextLine) ([]entity.NormalizedLine, []entity.Issue) {
	out := make([]entity.NormalizedLine, 0, len(lines))
	var issues []entity.Issue
	for _, l := range lines {
		nl, issue := n.NormalizeLine(l)
		if issue != nil {
			issues = append(issues, *issue)
		}
		out = append(out, nl)
	}
	return out, issues
}

// Reflow is MergeLines when merging is enabled and the identity otherwise.
func (n *Normalizer) Reflow(lines []entity.NormalizedLine) []entity.NormalizedLine {
	if !n.opts.MergeLines {
		return lines
	}
	return n.MergeLines(lines)
}

// MergeLines joins each line with the one below it when both are on the same
// page, the vertical gap is under MergeGapRatio of the upper line's height,
// and their horizontal extents overlap. Chains merge into one line.
func (n *Normalizer) MergeLines(lines []entity.NormalizedLine) []entity.NormalizedLine {
	if len(lines) < 2 {
		return lines
	}
	out := make([]entity.NormalizedLine, 0, len(lines))
	cur := lines[0]
	upper := lines[0].Box
	for _, next := range lines[1:] {
		gap := next.Box.Y - upper.Bottom()
		limit := n.opts.MergeGapRatio * upper.H
		if next.Page == cur.Page && gap < limit && cur.Box.OverlapsX(next.Box) {
			cur = merge(cur, next, gap, limit)
			upper = next.Box
			continue
		}
		out = append(out, cur)
		cur = next
		upper = next.Box
	}
	out = append(out, cur)
	if len(out) != len(lines) {
		n.logger.Debug("normalize.lines.merged", "before", len(lines), "after", len(out))
	}
	return out
}

func merge(a, b entity.NormalizedLine, gap, limit float64) entity.NormalizedLine {
	ops := slices.Clone(a.Operations)
	for _, op := range slices.Concat(b.Operations, []string{OpMerge}) {
		if !slices.Contains(ops, op) {
			ops = append(ops, op)
		}
	}
	from := slices.Concat(a.MergedFrom, b.MergedFrom)
	note := fmt.Sprintf("line %d joined to line %d (gap %.2f < %.2f)", b.Index, a.Index, gap, limit)
	if a.Provenance != "" {
		note = a.Provenance + "; " + note
	}
	return entity.NormalizedLine{
		Text:       strings.TrimSpace(a.Text + " " + b.Text),
		Original:   strings.TrimSpace(a.Original + " " + b.Original),
		Box:        a.Box.Union(b.Box),
		Page:       a.Page,
		Index:      a.Index,
		FontSize:   max(a.FontSize, b.FontSize),
		Operations: ops,
		MergedFrom: from,
		Provenance: note,
	}
}
