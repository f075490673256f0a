package export

import (
	"bytes"
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

type fakeLister struct {
	recs     []entity.InvoiceRecord
	err      error
	from, to *time.Time
}

func (l *fakeLister) List(_ context.Context, from, to *time.Time) ([]entity.InvoiceRecord, error) {
	l.from, l.to = from, to
	return l.recs, l.err
}

func open(b []byte) *excelize.File {
	f, err := excelize.OpenReader(bytes.NewReader(b))
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(f.Close)
	return f
}

var _ = Describe("ExportResultsXLSX", func() {
	It("writes a row per document and a row per field needing review", func() {
		ok := &entity.ExtractionResult{
			SourcePath: "/in/a.pdf", State: constants.StateSucceeded, Success: true,
			OverallConfidence: 0.91, ModelVersion: "rules-v1",
			Fields: []entity.ExtractedField{
				{Type: constants.InvoiceNumber, Value: "2024-001", Resolved: true, Confidence: 0.93},
				{Type: constants.InvoiceDate, Value: "12.03.2024", Resolved: true, Confidence: 0.55,
					Level: constants.ConfidenceMedium, RequiresManualReview: true, SourceLine: 4,
					Alternatives: []entity.Candidate{{Value: "01.04.2024", Confidence: 0.3, Line: 9}}},
			},
		}
		failed := &entity.ExtractionResult{
			SourcePath: "/in/b.pdf", State: constants.StateFailed,
			Errors: []entity.Issue{{Code: "EXTRACTOR_FAILED", Message: "not a PDF", Line: -1, Blocking: true}},
		}

		b, err := NewService(nil, nil).ExportResultsXLSX([]*entity.ExtractionResult{ok, nil, failed})
		Expect(err).NotTo(HaveOccurred())

		f := open(b)
		Expect(f.GetSheetList()).To(Equal([]string{SheetExtractions, SheetReview}))

		rows, err := f.GetRows(SheetExtractions)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(3))
		Expect(rows[0][:5]).To(Equal([]string{"Source File", "State", "Success", "Confidence", "Model"}))
		Expect(rows[0][5]).To(Equal("InvoiceNumber"))
		Expect(rows[1][0]).To(Equal("/in/a.pdf"))
		Expect(rows[1][1]).To(Equal("SUCCEEDED"))
		Expect(rows[1][5]).To(Equal("2024-001"))
		Expect(rows[2][len(rows[2])-1]).To(Equal("EXTRACTOR_FAILED: not a PDF"))

		review, err := f.GetRows(SheetReview)
		Expect(err).NotTo(HaveOccurred())
		Expect(review).To(HaveLen(2))
		Expect(review[1][1]).To(Equal("InvoiceDate"))
		Expect(review[1][5]).To(Equal("4"))
		Expect(review[1][6]).To(Equal("01.04.2024 (0.30)"))
	})
})

var _ = Describe("ExportInvoicesXLSX", func() {
	It("writes stored invoices", func() {
		date := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
		gross := decimal.RequireFromString("95.2")
		lister := &fakeLister{recs: []entity.InvoiceRecord{{
			InvoiceNumber: "2024-001", IssuerName: "Muster Handel GmbH", InvoiceDate: &date, GrossTotal: &gross,
		}}}

		b, err := NewService(lister, nil).ExportInvoicesXLSX(context.Background(), nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(lister.from).To(BeNil())
		Expect(lister.to).To(BeNil())

		rows, err := open(b).GetRows(SheetInvoices)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(2))
		Expect(rows[1][0]).To(Equal("2024-03-12"))
		Expect(rows[1][1]).To(Equal("2024-001"))
		Expect(rows[1][9]).To(Equal("95.20"))
	})

	It("passes on lister failures", func() {
		_, err := NewService(&fakeLister{err: errors.New("db down")}, nil).ExportInvoicesXLSX(context.Background(), nil, nil)
		Expect(err).To(MatchError(ContainSubstring("db down")))
	})
})

var _ = Describe("dateWindow", func() {
	now := time.Date(2024, 5, 20, 15, 30, 0, 0, time.UTC)

	It("runs a lone lower bound to today", func() {
		from := time.Date(2024, 1, 2, 11, 0, 0, 0, time.UTC)
		f, t := dateWindow(&from, nil, now)
		Expect(*f).To(Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
		Expect(*t).To(Equal(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)))
	})

	It("keeps a lone upper bound open below", func() {
		to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		f, t := dateWindow(nil, &to, now)
		Expect(f).To(BeNil())
		Expect(*t).To(Equal(to))
	})
})
