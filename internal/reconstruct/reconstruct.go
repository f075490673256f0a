// Package reconstruct groups positioned words into reading-order lines.
package reconstruct

import (
	"cmp"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// Reconstructor turns an unordered word list into per-page lines.
type Reconstructor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Reconstructor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconstructor{logger: logger}
}

// Reconstruct sorts words top to bottom and left to right, then walks them
// keeping a current line. A word opens a new line when it is on another page
// or its vertical center is more than half the first word's height away from
// the first word's center. The first word stays the reference for the whole
// line, so a tall word at the start widens the band and a short one narrows it.
//
// The output does not depend on input order.
func (r *Reconstructor) Reconstruct(words []entity.Word) []entity.TextLine {
	if len(words) == 0 {
		return []entity.TextLine{}
	}

	sorted := make([]entity.Word, 0, len(words))
	for _, w := range words {
		w.Box = w.Box.Clamp()
		sorted = append(sorted, w)
	}
	slices.SortFunc(sorted, compareWords)

	var (
		lines   []entity.TextLine
		current []entity.Word
		index   int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		lines = append(lines, buildLine(current, index))
		index++
		current = nil
	}

	for _, w := range sorted {
		if len(current) > 0 {
			ref := current[0]
			if w.Page != ref.Page {
				flush()
				index = 0
			} else if math.Abs(w.Box.CenterY()-ref.Box.CenterY()) > ref.Box.H/2 {
				flush()
			}
		}
		current = append(current, w)
	}
	flush()

	r.logger.Debug("reconstruct.lines", "words", len(words), "lines", len(lines))
	return lines
}

// Reconstruct runs a default Reconstructor.
func Reconstruct(words []entity.Word) []entity.TextLine {
	return New(nil).Reconstruct(words)
}

// Total order over words so that shuffled input sorts identically.
func compareWords(a, b entity.Word) int {
	return cmp.Or(
		cmp.Compare(a.Page, b.Page),
		cmp.Compare(a.Box.Y, b.Box.Y),
		cmp.Compare(a.Box.X, b.Box.X),
		cmp.Compare(a.Box.W, b.Box.W),
		cmp.Compare(a.Box.H, b.Box.H),
		strings.Compare(a.Text, b.Text),
		cmp.Compare(a.FontSize, b.FontSize),
		strings.Compare(a.FontName, b.FontName),
	)
}

func buildLine(members []entity.Word, index int) entity.TextLine {
	ordered := slices.Clone(members)
	slices.SortStableFunc(ordered, func(a, b entity.Word) int {
		return cmp.Or(cmp.Compare(a.Box.X, b.Box.X), compareWords(a, b))
	})

	box := ordered[0].Box
	texts := make([]string, 0, len(ordered))
	var fontSize float64
	for _, w := range ordered {
		box = box.Union(w.Box)
		if t := strings.TrimSpace(w.Text); t != "" {
			texts = append(texts, t)
		}
		fontSize = math.Max(fontSize, w.FontSize)
	}

	return entity.TextLine{
		Text:     strings.Join(texts, " "),
		Box:      box,
		Page:     ordered[0].Page,
		Index:    index,
		Words:    ordered,
		FontSize: fontSize,
		FontName: members[0].FontName,
	}
}
