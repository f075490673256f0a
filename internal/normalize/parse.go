package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDateLayouts are tried in order; dd.MM.yyyy comes first.
var DefaultDateLayouts = []string{
	"02.01.2006",
	"2.1.2006",
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02.01.06",
	"2 January 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

var (
	ErrNoDate   = errors.New("no date found")
	ErrNoAmount = errors.New("no amount found")

	reCanonicalDate = regexp.MustCompile(`\b\d{2}\.\d{2}\.\d{4}\b`)
	reISODate       = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	reAmount        = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

// ParseDate reads a date from s. The whole string is tried against each
// layout first; failing that, the first date token in the canonicalized text
// is used. Results are midnight UTC.
func ParseDate(s string, layouts ...string) (time.Time, error) {
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	canon := CanonicalDates(canonicalDashes(s))
	if tok := reCanonicalDate.FindString(canon); tok != "" {
		if t, err := time.Parse("02.01.2006", tok); err == nil {
			return t, nil
		}
	}
	if tok := reISODate.FindString(canon); tok != "" {
		if t, err := time.Parse("2006-01-02", tok); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w in %q", ErrNoDate, s)
}

// ParseAmount reads the last number in s after decimal canonicalization, so
// "1.234,56 €" and "Total: EUR 1,234.56" both give 1234.56.
func ParseAmount(s string) (decimal.Decimal, error) {
	canon := CanonicalDates(NormalizeDecimals(canonicalDashes(s)))
	canon = reCanonicalDate.ReplaceAllString(canon, " ")
	matches := reAmount.FindAllString(canon, -1)
	if len(matches) == 0 {
		return decimal.Zero, fmt.Errorf("%w in %q", ErrNoAmount, s)
	}
	d, err := decimal.NewFromString(matches[len(matches)-1])
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}
