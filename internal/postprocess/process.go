package postprocess

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/normalize"
)

// DefaultTolerance is the allowed |net + vat - gross| gap.
var DefaultTolerance = decimal.RequireFromString("0.02")

var postalRe = regexp.MustCompile(`^(?i:[a-z]{1,2}-)?[A-Z0-9][A-Z0-9 -]{2,9}$`)

// Config controls validation. Zero values take the defaults.
type Config struct {
	Required    []constants.FieldType
	Optional    []constants.FieldType
	Tolerance   decimal.Decimal
	Strict      bool
	DateLayouts []string
	TopK        int
}

// Outcome is the validated field set plus accumulated issues.
type Outcome struct {
	Fields   []entity.ExtractedField
	Warnings []entity.Issue
	Errors   []entity.Issue
}

type Processor struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tolerance.IsZero() {
		cfg.Tolerance = DefaultTolerance
	}
	if len(cfg.DateLayouts) == 0 {
		cfg.DateLayouts = normalize.DefaultDateLayouts
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	return &Processor{cfg: cfg, logger: logger}
}

// Process coerces values, checks required fields and the amount rule. Fields
// are never dropped; a failed coercion zeroes the field's confidence.
func (p *Processor) Process(fields []entity.ExtractedField) Outcome {
	out := Outcome{Fields: make([]entity.ExtractedField, len(fields))}
	copy(out.Fields, fields)

	for i := range out.Fields {
		f := &out.Fields[i]
		if !f.Resolved {
			continue
		}
		if err := p.coerce(f); err != nil {
			p.logger.Warn("postprocess.coerce.failed", "field", f.Type, "value", f.Value, "error", err)
			f.Confidence = 0
			f.Level = constants.ConfidenceLow
			f.RequiresManualReview = true
			out.Warnings = append(out.Warnings, entity.Issue{
				Code:    common.CodeCoercion,
				Message: fmt.Sprintf("%s value %q: %v", f.Type, f.Value, err),
				Field:   f.Type,
				Line:    f.SourceLine,
			})
		}
	}

	for _, req := range p.cfg.Required {
		if f, ok := find(out.Fields, req); ok && f.Resolved && strings.TrimSpace(f.Value) != "" {
			continue
		}
		out.Errors = append(out.Errors, entity.Issue{
			Code:     common.CodeRequiredMissing,
			Message:  fmt.Sprintf("required field %s is missing", req),
			Field:    req,
			Line:     -1,
			Blocking: true,
		})
	}

	if issue, ok := p.checkAmounts(out.Fields); ok {
		if p.cfg.Strict {
			issue.Blocking = true
			out.Errors = append(out.Errors, issue)
		} else {
			out.Warnings = append(out.Warnings, issue)
		}
	}
	return out
}

func (p *Processor) coerce(f *entity.ExtractedField) error {
	switch f.Type.Kind() {
	case constants.KindDate:
		t, err := normalize.ParseDate(f.Value, p.cfg.DateLayouts...)
		if err != nil {
			return err
		}
		f.Date = &t
	case constants.KindAmount:
		d, err := normalize.ParseAmount(f.Value)
		if err != nil {
			return err
		}
		f.Amount = &d
	case constants.KindPostal:
		if !postalRe.MatchString(strings.TrimSpace(f.Value)) {
			return fmt.Errorf("not a postal code")
		}
	}
	return nil
}

// checkAmounts reports an amount-consistency issue when net, vat and gross
// are all known and disagree by more than the tolerance.
func (p *Processor) checkAmounts(fields []entity.ExtractedField) (entity.Issue, bool) {
	net, okN := amount(fields, constants.NetTotal)
	vat, okV := amount(fields, constants.VatTotal)
	gross, okG := amount(fields, constants.GrossTotal)
	if !okN || !okV || !okG {
		return entity.Issue{}, false
	}
	diff := net.Add(vat).Sub(gross).Abs()
	if diff.LessThanOrEqual(p.cfg.Tolerance) {
		return entity.Issue{}, false
	}
	line := -1
	if g, ok := find(fields, constants.GrossTotal); ok {
		line = g.SourceLine
	}
	return entity.Issue{
		Code: common.CodeAmountMismatch,
		Message: fmt.Sprintf("net %s + vat %s differs from gross %s by %s",
			net.StringFixed(2), vat.StringFixed(2), gross.StringFixed(2), diff.StringFixed(2)),
		Field: constants.GrossTotal,
		Line:  line,
	}, true
}

func amount(fields []entity.ExtractedField, t constants.FieldType) (decimal.Decimal, bool) {
	f, ok := find(fields, t)
	if !ok || !f.Resolved || f.Amount == nil {
		return decimal.Decimal{}, false
	}
	return *f.Amount, true
}

func find(fields []entity.ExtractedField, t constants.FieldType) (entity.ExtractedField, bool) {
	for _, f := range fields {
		if f.Type == t {
			return f, true
		}
	}
	return entity.ExtractedField{}, false
}
