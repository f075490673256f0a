package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// composeUnicode drops invisible format characters and applies NFC.
func composeUnicode(s string) string {
	return norm.NFC.String(invisibleReplacer.Replace(s))
}

var ligatureReplacer = strings.NewReplacer(
	"ﬀ", "ff",
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
	"ﬅ", "st",
	"ﬆ", "st",
	"Ĳ", "IJ",
	"ĳ", "ij",
)

// Expanded letters can compose with a following combining mark, so the
// result is recomposed.
func resolveLigatures(s string) string {
	out := ligatureReplacer.Replace(s)
	if out == s {
		return s
	}
	return norm.NFC.String(out)
}

var quoteReplacer = strings.NewReplacer(
	"‘", "'", "’", "'", "‚", "'", "‛", "'", "′", "'", "´", "'", "`", "'",
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "″", `"`, "«", `"`, "»", `"`,
)

func straightenQuotes(s string) string {
	return quoteReplacer.Replace(s)
}

var dashReplacer = strings.NewReplacer(
	"‐", "-", "‑", "-", "‒", "-", "–", "-", "—", "-", "―", "-", "−", "-", "﹣", "-", "－", "-",
)

func canonicalDashes(s string) string {
	return dashReplacer.Replace(s)
}

var (
	reNumberToken  = regexp.MustCompile(`\d[\d.,]*\d`)
	reCommaDecimal = regexp.MustCompile(`^\d+,\d{2}$`)
	reDotThousands = regexp.MustCompile(`^\d{1,3}(\.\d{3}){2,}$`)
	reComThousands = regexp.MustCompile(`^\d{1,3}(,\d{3}){2,}$`)
	reEuropean     = regexp.MustCompile(`^\d{1,3}(\.\d{3})+,\d+$`)
	reAnglo        = regexp.MustCompile(`^\d{1,3}(,\d{3})+\.\d+$`)
)

// NormalizeDecimals rewrites numeric tokens to use '.' as the decimal point
// and no thousands separators. Tokens whose meaning is ambiguous, such as
// "1.234" or "1,234", are left alone.
func NormalizeDecimals(s string) string {
	return reNumberToken.ReplaceAllStringFunc(s, normalizeNumber)
}

func normalizeNumber(tok string) string {
	switch {
	case reCommaDecimal.MatchString(tok):
		return strings.Replace(tok, ",", ".", 1)
	case reDotThousands.MatchString(tok):
		return strings.ReplaceAll(tok, ".", "")
	case reComThousands.MatchString(tok):
		return strings.ReplaceAll(tok, ",", "")
	case reEuropean.MatchString(tok):
		return strings.Replace(strings.ReplaceAll(tok, ".", ""), ",", ".", 1)
	case reAnglo.MatchString(tok):
		return strings.ReplaceAll(tok, ",", "")
	}
	return tok
}

var reDateToken = regexp.MustCompile(`\b(\d{1,2})([./-])(\d{1,2})([./-])(\d{4}|\d{2})\b`)

// CanonicalDates rewrites day-first dates with one consistent separator to
// dd.mm.yyyy. Two digit years are read as 20yy.
func CanonicalDates(s string) string {
	return reDateToken.ReplaceAllStringFunc(s, func(tok string) string {
		m := reDateToken.FindStringSubmatch(tok)
		if m == nil || m[2] != m[4] {
			return tok
		}
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[3])
		year, _ := strconv.Atoi(m[5])
		if len(m[5]) == 2 {
			year += 2000
		}
		if day < 1 || day > 31 || month < 1 || month > 12 {
			return tok
		}
		return fmt.Sprintf("%02d.%02d.%04d", day, month, year)
	})
}

var invisibleReplacer = strings.NewReplacer("\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "", "\u00ad", "")

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
