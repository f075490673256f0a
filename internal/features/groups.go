package features

import (
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/patterns"
)

// RegexFeatures runs every enabled pattern on text.
func RegexFeatures(reg *patterns.Registry, text string) []entity.RegexHit {
	var hits []entity.RegexHit
	for _, m := range reg.MatchAll(text) {
		def, _ := reg.Get(m.Pattern)
		hits = append(hits, entity.RegexHit{
			Pattern:  m.Pattern,
			Category: def.Category,
			Start:    m.Start,
			End:      m.End,
			Text:     m.Text,
			Groups:   m.Groups,
			Weight:   def.Weight,
			Priority: def.Priority,
		})
	}
	return hits
}

// PageGeometry describes the page a line sits on.
type PageGeometry struct {
	Width, Height float64
	Lines         int // lines on the page
	MedianFont    float64
	PageCount     int
}

// PositionFeatures places a line relative to its page. rank is the line's
// zero-based order on the page.
func PositionFeatures(l entity.NormalizedLine, rank int, g PageGeometry) entity.PositionFeatures {
	p := entity.PositionFeatures{Box: l.Box, Rank: rank, Page: l.Page}
	if g.Width > 0 {
		p.RelX = clamp01(l.Box.X / g.Width)
		p.RelW = clamp01(l.Box.W / g.Width)
	}
	if g.Height > 0 {
		p.RelY = clamp01(l.Box.Y / g.Height)
		p.RelH = clamp01(l.Box.H / g.Height)
	}
	if g.Lines > 1 {
		p.RelRank = float64(rank) / float64(g.Lines-1)
	}
	return p
}

// ContextFeatures collects the text of up to window lines on each side,
// nearest first, without crossing pages.
func ContextFeatures(lines []entity.NormalizedLine, i, window int) entity.ContextFeatures {
	var c entity.ContextFeatures
	for k := 1; k <= window; k++ {
		if j := i - k; j >= 0 && lines[j].Page == lines[i].Page {
			c.Before = append(c.Before, lines[j].Text)
		}
		if j := i + k; j < len(lines) && lines[j].Page == lines[i].Page {
			c.After = append(c.After, lines[j].Text)
		}
	}
	return c
}

const currencyRunes = "€$£¥"

var currencyCodes = []string{"eur", "usd", "gbp", "chf"}

// TextStats computes character-level statistics over text.
func TextStats(text string) entity.TextStats {
	s := entity.TextStats{Tokens: len(strings.Fields(text))}
	var letters, digits, upper int
	for _, r := range text {
		s.Length++
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
		if strings.ContainsRune(currencyRunes, r) {
			s.HasCurrency = true
		}
	}
	if s.Length > 0 {
		s.DigitRatio = float64(digits) / float64(s.Length)
		s.AlphaRatio = float64(letters) / float64(s.Length)
	}
	if letters > 0 {
		s.UpperRatio = float64(upper) / float64(letters)
	}
	if !s.HasCurrency {
		words := keywordText(text)
		for _, c := range currencyCodes {
			if strings.Contains(words, " "+c+" ") {
				s.HasCurrency = true
				break
			}
		}
	}
	return s
}

// keywordText lowercases text and replaces everything except letters, digits,
// '.' and '#' with single spaces, padded on both ends.
func keywordText(text string) string {
	var b strings.Builder
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '#' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

// HasKeyword reports whether any of f's keywords starts a word in text.
func HasKeyword(f constants.FieldType, text string) bool {
	return hasKeyword(f, keywordText(text))
}

func hasKeyword(f constants.FieldType, words string) bool {
	for _, kw := range f.Keywords() {
		if strings.Contains(words, strings.TrimRight(keywordText(kw), " ")) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := slices.Clone(vals)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
