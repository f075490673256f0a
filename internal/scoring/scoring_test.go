package scoring

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

func prediction(conf float64) entity.PredictionResult {
	rest := (1 - conf) / 4
	return entity.PredictionResult{
		Label:      constants.GrossTotal,
		Confidence: conf,
		Scores: []entity.ClassScore{
			{Label: constants.GrossTotal, Probability: conf, Rank: 1},
			{Label: constants.NetTotal, Probability: rest, Rank: 2},
			{Label: constants.VatTotal, Probability: rest, Rank: 3},
			{Label: constants.Other, Probability: rest, Rank: 4},
			{Label: constants.InvoiceNumber, Probability: rest, Rank: 5},
		},
	}
}

var _ = Describe("Scorer", func() {
	var s *Scorer

	BeforeEach(func() {
		s = New(Config{})
	})

	DescribeTable("levels",
		func(conf float64, want constants.ConfidenceLevel) {
			Expect(s.Level(conf)).To(Equal(want))
		},
		Entry("at the high threshold", 0.8, constants.ConfidenceHigh),
		Entry("certain", 1.0, constants.ConfidenceHigh),
		Entry("just below high", 0.79, constants.ConfidenceMedium),
		Entry("at the low threshold", 0.3, constants.ConfidenceMedium),
		Entry("just below low", 0.29, constants.ConfidenceLow),
		Entry("zero", 0.0, constants.ConfidenceLow),
	)

	DescribeTable("manual review",
		func(conf, threshold float64, want bool) {
			Expect(s.Assess(prediction(conf), threshold).RequiresManualReview).To(Equal(want))
		},
		Entry("high and above threshold", 0.9, 0.7, false),
		Entry("medium and above threshold", 0.75, 0.7, false),
		Entry("medium and below threshold", 0.65, 0.7, true),
		Entry("low even with no threshold", 0.2, 0.0, true),
		Entry("equal to threshold", 0.7, 0.7, false),
	)

	It("lists the top non-winning classes as alternatives", func() {
		sp := s.Assess(prediction(0.6), 0.7)
		Expect(sp.Level).To(Equal(constants.ConfidenceMedium))
		Expect(sp.Alternatives).To(HaveLen(3))
		for _, a := range sp.Alternatives {
			Expect(a.Label).NotTo(Equal(constants.GrossTotal))
		}
		Expect(sp.Alternatives[0].Label).To(Equal(constants.NetTotal))
	})

	It("honours configured thresholds", func() {
		s = New(Config{High: 0.95, Low: 0.5, TopK: 1})
		Expect(s.Level(0.9)).To(Equal(constants.ConfidenceMedium))
		Expect(s.Level(0.45)).To(Equal(constants.ConfidenceLow))
		Expect(s.Assess(prediction(0.9), 0).Alternatives).To(HaveLen(1))
	})
})

var _ = Describe("OverallConfidence", func() {
	required := []constants.FieldType{constants.InvoiceNumber, constants.GrossTotal}

	It("averages resolved required fields only", func() {
		fields := []entity.ExtractedField{
			{Type: constants.InvoiceNumber, Resolved: true, Confidence: 0.9},
			{Type: constants.GrossTotal, Resolved: true, Confidence: 0.5},
			{Type: constants.IssuerCity, Resolved: true, Confidence: 0.1},
		}
		Expect(OverallConfidence(fields, required)).To(BeNumerically("~", 0.7, 1e-9))
	})

	It("ignores unresolved required fields", func() {
		fields := []entity.ExtractedField{
			{Type: constants.InvoiceNumber, Resolved: true, Confidence: 0.9},
			{Type: constants.GrossTotal},
		}
		Expect(OverallConfidence(fields, required)).To(BeNumerically("~", 0.9, 1e-9))
	})

	It("is zero when nothing required resolved", func() {
		Expect(OverallConfidence(nil, required)).To(Equal(0.0))
		Expect(OverallConfidence([]entity.ExtractedField{{Type: constants.IssuerCity, Resolved: true, Confidence: 1}}, required)).To(Equal(0.0))
	})
})
