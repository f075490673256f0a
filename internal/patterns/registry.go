// Package patterns holds the named, versioned regular expressions that feed
// the regex feature group.
package patterns

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sync/atomic"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

var ErrUnknownPattern = errors.New("unknown pattern")

// Definition is one configured pattern.
type Definition struct {
	Name       string  `json:"name" yaml:"name"`
	Expression string  `json:"expression" yaml:"expression"`
	Category   string  `json:"category,omitempty" yaml:"category,omitempty"`
	Priority   int     `json:"priority,omitempty" yaml:"priority,omitempty"`
	Weight     float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
	Enabled    *bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Version    int     `json:"version,omitempty" yaml:"version,omitempty"`
}

// IsEnabled treats a missing flag as enabled.
func (d Definition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// Match is one hit of a pattern on a text. Offsets are byte offsets.
type Match struct {
	Pattern string
	Start   int
	End     int
	Text    string
	Groups  []string
}

// Stat is a snapshot of one pattern's counters.
type Stat struct {
	Name        string
	Attempts    int64
	Matches     int64
	SuccessRate float64
}

type pattern struct {
	def      Definition
	re       *regexp.Regexp
	attempts atomic.Int64
	matches  atomic.Int64
}

// Registry is read-only after construction apart from its counters and is
// safe for concurrent use.
type Registry struct {
	ordered  []*pattern
	byName   map[string]*pattern
	warnings []entity.Issue
	logger   *slog.Logger
}

// New compiles defs. Invalid or duplicate definitions are skipped and kept as
// warnings.
func New(defs []Definition, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{byName: make(map[string]*pattern, len(defs)), logger: logger}
	for _, d := range defs {
		if d.Version == 0 {
			d.Version = 1
		}
		if _, dup := r.byName[d.Name]; dup {
			r.warn(d, fmt.Errorf("duplicate pattern name"))
			continue
		}
		re, err := regexp.Compile(d.Expression)
		if err != nil {
			r.warn(d, err)
			continue
		}
		p := &pattern{def: d, re: re}
		r.byName[d.Name] = p
		r.ordered = append(r.ordered, p)
	}
	slices.SortStableFunc(r.ordered, func(a, b *pattern) int {
		return cmp.Or(cmp.Compare(a.def.Priority, b.def.Priority), cmp.Compare(a.def.Name, b.def.Name))
	})
	logger.Debug("patterns.registry.built", "patterns", len(r.ordered), "skipped", len(r.warnings))
	return r
}

func (r *Registry) warn(d Definition, err error) {
	r.logger.Warn("patterns.definition.skipped", "pattern", d.Name, "error", err)
	r.warnings = append(r.warnings, entity.Issue{
		Code:    common.CodePatternInvalid,
		Message: fmt.Sprintf("pattern %q skipped: %v", d.Name, err),
		Line:    -1,
	})
}

// Warnings lists the definitions skipped at build time.
func (r *Registry) Warnings() []entity.Issue {
	return slices.Clone(r.warnings)
}

// Names returns the enabled pattern names in priority order.
func (r *Registry) Names() []string {
	var out []string
	for _, p := range r.ordered {
		if p.def.IsEnabled() {
			out = append(out, p.def.Name)
		}
	}
	return out
}

// Get returns a pattern's definition.
func (r *Registry) Get(name string) (Definition, bool) {
	p, ok := r.byName[name]
	if !ok {
		return Definition{}, false
	}
	return p.def, true
}

// Match runs the named pattern against text. A disabled pattern matches
// nothing.
func (r *Registry) Match(name, text string) ([]Match, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPattern, name)
	}
	if !p.def.IsEnabled() {
		return nil, nil
	}
	return p.match(text), nil
}

// MatchAll runs every enabled pattern in priority order.
func (r *Registry) MatchAll(text string) []Match {
	var out []Match
	for _, p := range r.ordered {
		if p.def.IsEnabled() {
			out = append(out, p.match(text)...)
		}
	}
	return out
}

func (p *pattern) match(text string) []Match {
	p.attempts.Add(1)
	idx := p.re.FindAllStringSubmatchIndex(text, -1)
	if len(idx) == 0 {
		return nil
	}
	p.matches.Add(1)
	out := make([]Match, 0, len(idx))
	for _, loc := range idx {
		m := Match{Pattern: p.def.Name, Start: loc[0], End: loc[1], Text: text[loc[0]:loc[1]]}
		for g := 2; g+1 < len(loc); g += 2 {
			if loc[g] >= 0 {
				m.Groups = append(m.Groups, text[loc[g]:loc[g+1]])
			} else {
				m.Groups = append(m.Groups, "")
			}
		}
		out = append(out, m)
	}
	return out
}

// Stats snapshots the per-pattern counters. SuccessRate is the share of
// attempts with at least one match.
func (r *Registry) Stats() []Stat {
	out := make([]Stat, 0, len(r.ordered))
	for _, p := range r.ordered {
		s := Stat{Name: p.def.Name, Attempts: p.attempts.Load(), Matches: p.matches.Load()}
		if s.Attempts > 0 {
			s.SuccessRate = float64(s.Matches) / float64(s.Attempts)
		}
		out = append(out, s)
	}
	return out
}
