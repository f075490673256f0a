package normalize

// Options toggles each pass. The zero value disables everything; use
// DefaultOptions for the standard pipeline.
type Options struct {
	Unicode    bool
	Ligatures  bool
	Quotes     bool
	Dashes     bool
	Decimals   bool
	Dates      bool
	Whitespace bool

	MergeLines    bool
	MergeGapRatio float64 // fraction of the upper line's height; default 0.5
}

func DefaultOptions() Options {
	return Options{
		Unicode:       true,
		Ligatures:     true,
		Quotes:        true,
		Dashes:        true,
		Decimals:      true,
		Dates:         true,
		Whitespace:    true,
		MergeLines:    true,
		MergeGapRatio: 0.5,
	}
}

// Pass names, recorded on NormalizedLine.Operations.
const (
	OpUnicode    = "unicode_nfc"
	OpLigatures  = "ligatures"
	OpQuotes     = "quotes"
	OpDashes     = "dashes"
	OpDecimals   = "decimal_separators"
	OpDates      = "dates"
	OpWhitespace = "whitespace"
	OpMerge      = "merge"
)

// Pass is one text transform. Apply must be deterministic and idempotent.
type Pass struct {
	Name  string
	Apply func(string) string
}

func (o Options) passes() []Pass {
	var ps []Pass
	add := func(on bool, name string, fn func(string) string) {
		if on {
			ps = append(ps, Pass{Name: name, Apply: fn})
		}
	}
	add(o.Unicode, OpUnicode, composeUnicode)
	add(o.Ligatures, OpLigatures, resolveLigatures)
	add(o.Quotes, OpQuotes, straightenQuotes)
	add(o.Dashes, OpDashes, canonicalDashes)
	add(o.Decimals, OpDecimals, NormalizeDecimals)
	add(o.Dates, OpDates, CanonicalDates)
	add(o.Whitespace, OpWhitespace, collapseWhitespace)
	return ps
}
