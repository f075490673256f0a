// Package export writes extraction results and stored invoices as XLSX.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

const (
	SheetExtractions = "Extractions"
	SheetReview      = "Review"
	SheetInvoices    = "Invoices"
)

// InvoiceLister lists stored invoices by date window.
type InvoiceLister interface {
	List(ctx context.Context, from, to *time.Time) ([]entity.InvoiceRecord, error)
}

// Service produces XLSX bytes for exports.
type Service struct {
	invoices InvoiceLister
	logger   *slog.Logger
}

func NewService(invoices InvoiceLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{invoices: invoices, logger: logger}
}

// ExportResultsXLSX writes one row per document on the Extractions sheet and
// one row per field needing manual review on the Review sheet.
func (s *Service) ExportResultsXLSX(results []*entity.ExtractionResult) ([]byte, error) {
	start := time.Now()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := useSheet(f, SheetExtractions); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetReview); err != nil {
		return nil, err
	}

	fields := constants.ExtractableFields()
	headers := []any{"Source File", "State", "Success", "Confidence", "Model"}
	for _, ft := range fields {
		headers = append(headers, string(ft))
	}
	headers = append(headers, "Warnings", "Errors")
	if err := writeRow(f, SheetExtractions, 1, headers); err != nil {
		return nil, err
	}
	if err := writeRow(f, SheetReview, 1, []any{
		"Source File", "Field", "Value", "Confidence", "Level", "Line", "Alternatives",
	}); err != nil {
		return nil, err
	}

	row, reviewRow := 2, 2
	for _, res := range results {
		if res == nil {
			continue
		}
		vals := []any{res.SourcePath, string(res.State), res.Success, round(res.OverallConfidence), res.ModelVersion}
		for _, ft := range fields {
			vals = append(vals, res.Value(ft))
		}
		vals = append(vals, issueText(res.Warnings), issueText(res.Errors))
		if err := writeRow(f, SheetExtractions, row, vals); err != nil {
			return nil, err
		}
		row++

		for _, fld := range res.Fields {
			if !fld.RequiresManualReview {
				continue
			}
			line := any("")
			if fld.SourceLine >= 0 {
				line = fld.SourceLine
			}
			if err := writeRow(f, SheetReview, reviewRow, []any{
				res.SourcePath, string(fld.Type), fld.Value, round(fld.Confidence), string(fld.Level), line, alternatives(fld.Alternatives),
			}); err != nil {
				return nil, err
			}
			reviewRow++
		}
	}

	_ = f.SetColWidth(SheetExtractions, "A", "A", 48)
	_ = f.SetColWidth(SheetExtractions, "B", "E", 14)
	_ = f.SetColWidth(SheetReview, "A", "A", 48)
	_ = f.SetColWidth(SheetReview, "B", "C", 24)
	_ = f.SetColWidth(SheetReview, "G", "G", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.results.ok",
		"documents", row-2,
		"review_rows", reviewRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// ExportInvoicesXLSX writes stored invoices in a date window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all invoices.
func (s *Service) ExportInvoicesXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()
	fromDate, toDate := dateWindow(from, to, time.Now())

	recs, err := s.invoices.List(ctx, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := useSheet(f, SheetInvoices); err != nil {
		return nil, err
	}
	if err := writeRow(f, SheetInvoices, 1, []any{
		"Invoice Date", "Invoice Number", "Issuer", "Street", "Postal Code", "City", "Country",
		"Net", "VAT", "Gross", "Confidence", "Needs Review", "Source File",
	}); err != nil {
		return nil, err
	}
	for i, r := range recs {
		date := ""
		if r.InvoiceDate != nil {
			date = r.InvoiceDate.Format("2006-01-02")
		}
		if err := writeRow(f, SheetInvoices, i+2, []any{
			date, r.InvoiceNumber, r.IssuerName, r.IssuerStreet, r.PostalCode, r.City, r.Country,
			money(r.NetTotal), money(r.VatTotal), money(r.GrossTotal), round(r.Confidence), r.NeedsReview, r.SourcePath,
		}); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(SheetInvoices, "A", "B", 16)
	_ = f.SetColWidth(SheetInvoices, "C", "D", 28)
	_ = f.SetColWidth(SheetInvoices, "M", "M", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.invoices.ok", "rows", len(recs), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

// dateWindow normalizes bounds to UTC dates; a lone from runs to today.
func dateWindow(from, to *time.Time, now time.Time) (*time.Time, *time.Time) {
	date := func(t time.Time) *time.Time {
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &d
	}
	var f, t *time.Time
	if from != nil {
		f = date(*from)
	}
	if to != nil {
		t = date(*to)
	}
	if f != nil && t == nil {
		t = date(now.UTC())
	}
	return f, t
}

// useSheet renames the default sheet so the workbook has no empty Sheet1.
func useSheet(f *excelize.File, name string) error {
	if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
		return err
	}
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, vals []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &vals)
}

func issueText(issues []entity.Issue) string {
	parts := make([]string, 0, len(issues))
	for _, is := range issues {
		parts = append(parts, fmt.Sprintf("%s: %s", is.Code, is.Message))
	}
	return truncate(strings.Join(parts, "; "), 500)
}

func alternatives(cands []entity.Candidate) string {
	parts := make([]string, 0, len(cands))
	for _, c := range cands {
		parts = append(parts, fmt.Sprintf("%s (%.2f)", c.Value, c.Confidence))
	}
	return strings.Join(parts, "; ")
}

func money(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

func round(f float64) float64 {
	return float64(int(f*1000+0.5)) / 1000
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
