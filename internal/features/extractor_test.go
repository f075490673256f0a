package features

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/patterns"
)

func nline(idx int, text string, y float64) entity.NormalizedLine {
	return entity.NormalizedLine{
		Text: text, Original: text, Index: idx, Page: 1, FontSize: 10,
		Box: entity.BBox{X: 50, Y: y, W: 200, H: 10},
	}
}

var _ = Describe("Extractor", func() {
	var (
		ext   *Extractor
		lines []entity.NormalizedLine
		doc   entity.Document
		vecs  []entity.FeatureVector
		iss   []entity.Issue
	)

	BeforeEach(func() {
		ext = New(patterns.Default(nil), Config{}, nil)
		lines = []entity.NormalizedLine{
			nline(0, "Acme Supplies GmbH", 40),
			nline(1, "Invoice No. 2024-001", 100),
			nline(2, "Date: 12.03.2024", 120),
			nline(3, "Total 95.20 EUR", 700),
		}
		doc = entity.Document{Pages: []entity.Page{{Number: 1, Width: 600, Height: 800}}}
	})

	JustBeforeEach(func() {
		vecs, iss = ext.Extract(lines, doc)
	})

	It("produces one vector per line over the full schema", func() {
		Expect(iss).To(BeEmpty())
		Expect(vecs).To(HaveLen(4))
		for i, v := range vecs {
			Expect(v.Line).To(Equal(i))
			Expect(v.SchemaVersion).To(Equal(ext.Schema().Version))
			Expect(v.Values).To(HaveLen(len(ext.Schema().Keys)))
		}
	})

	It("records regex hits with their weight", func() {
		Expect(vecs[1].Values[RegexKey("invoice_number")]).To(BeNumerically(">", 0))
		Expect(vecs[2].Values[RegexKey("date")]).To(BeNumerically(">", 0))
		Expect(vecs[3].Values[RegexKey("currency_amount")]).To(BeNumerically(">", 0))
		Expect(vecs[0].Values[RegexKey("legal_form")]).To(BeNumerically(">", 0))
	})

	It("places lines on the page", func() {
		Expect(vecs[0].Position.Rank).To(Equal(0))
		Expect(vecs[3].Values[KeyPosRank]).To(Equal(1.0))
		Expect(vecs[0].Values[KeyPosTop]).To(Equal(1.0))
		Expect(vecs[3].Values[KeyPosBottom]).To(Equal(1.0))
		Expect(vecs[1].Position.RelY).To(BeNumerically("~", 100.0/800, 1e-9))
	})

	It("captures neighbouring lines and their keywords", func() {
		Expect(vecs[2].Context.Before).To(Equal([]string{"Invoice No. 2024-001", "Acme Supplies GmbH"}))
		Expect(vecs[2].Context.After).To(Equal([]string{"Total 95.20 EUR"}))
		Expect(vecs[2].Values[PrevKeywordKey(constants.InvoiceNumber)]).To(Equal(1.0))
		Expect(vecs[2].Values[KeywordKey(constants.InvoiceDate)]).To(Equal(1.0))
		Expect(vecs[3].Values[KeywordKey(constants.GrossTotal)]).To(Equal(1.0))
	})

	It("computes text statistics", func() {
		Expect(vecs[3].Stats.HasCurrency).To(BeTrue())
		Expect(vecs[3].Stats.Tokens).To(Equal(3))
		Expect(vecs[0].Stats.DigitRatio).To(BeZero())
	})

	When("the document has no page size", func() {
		BeforeEach(func() { doc = entity.Document{} })

		It("falls back to line extents", func() {
			Expect(vecs[3].Position.RelY).To(BeNumerically("~", 700.0/710, 1e-9))
		})
	})

	When("a group fails on one line", func() {
		BeforeEach(func() {
			ext = New(patterns.Default(nil), Config{Groups: []Group{{
				Name: "fragile",
				Keys: []string{"custom.len"},
				Compute: func(in LineInput) map[string]float64 {
					if in.Index == 2 {
						panic("boom")
					}
					return map[string]float64{"custom.len": float64(len(in.Lines[in.Index].Text))}
				},
			}}}, nil)
		})

		It("drops only that line with a warning", func() {
			Expect(vecs).To(HaveLen(3))
			Expect(vecs[2].Line).To(Equal(3))
			Expect(iss).To(HaveLen(1))
			Expect(iss[0].Code).To(Equal(common.CodeFeatureLine))
			Expect(vecs[0].Values["custom.len"]).To(Equal(18.0))
		})
	})
})

var _ = Describe("Schema", func() {
	It("is stable and versioned by its keys", func() {
		a := BuildSchema([]string{"date", "iban"})
		b := BuildSchema([]string{"iban", "date"})
		c := BuildSchema([]string{"iban"})
		Expect(a).To(Equal(b))
		Expect(a.Version).NotTo(Equal(c.Version))
		Expect(a.Has(RegexKey("date"))).To(BeTrue())
		Expect(a.Has("regex.nope")).To(BeFalse())
	})
})

var _ = Describe("HasKeyword", func() {
	It("matches at word starts only", func() {
		Expect(HasKeyword(constants.NetTotal, "Nettobetrag 80.00")).To(BeTrue())
		Expect(HasKeyword(constants.NetTotal, "Internet 80.00")).To(BeFalse())
		Expect(HasKeyword(constants.InvoiceNumber, "Re-Nr: 17")).To(BeTrue())
	})
})
