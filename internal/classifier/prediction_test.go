package classifier

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/joseph-ayodele/invoice-extractor/constants"
)

var _ = Describe("NewPrediction", func() {
	labels := constants.AllFields()

	It("ranks labels by descending probability", func() {
		raw := make([]float64, len(labels))
		raw[constants.GrossTotal.Index()] = 3
		raw[constants.NetTotal.Index()] = 2
		raw[constants.VatTotal.Index()] = 1

		p, err := NewPrediction(labels, raw, "v1", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Label).To(Equal(constants.GrossTotal))
		Expect(p.ModelVersion).To(Equal("v1"))
		Expect(p.TopK).To(HaveLen(3))
		Expect(p.TopK[0].Label).To(Equal(constants.GrossTotal))
		Expect(p.TopK[1].Label).To(Equal(constants.NetTotal))
		Expect(p.TopK[2].Label).To(Equal(constants.VatTotal))
		Expect(p.Confidence).To(Equal(p.Scores[0].Probability))

		var sum float64
		for i, s := range p.Scores {
			Expect(s.Rank).To(Equal(i + 1))
			Expect(s.Probability).To(BeNumerically(">=", 0))
			Expect(s.Probability).To(BeNumerically("<=", 1))
			if i > 0 {
				Expect(s.Probability).To(BeNumerically("<=", p.Scores[i-1].Probability))
			}
			sum += s.Probability
		}
		Expect(sum).To(BeNumerically("~", 1, 1e-9))
	})

	It("breaks ties by label order", func() {
		p, err := NewPrediction(labels, make([]float64, len(labels)), "v1", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Label).To(Equal(constants.InvoiceNumber))
		Expect(p.TopK).To(HaveLen(DefaultTopK))
		Expect(p.TopK[1].Label).To(Equal(constants.InvoiceDate))
		Expect(p.Confidence).To(BeNumerically("~", 1.0/float64(len(labels)), 1e-9))
	})

	It("stays finite for extreme scores", func() {
		raw := make([]float64, len(labels))
		raw[0] = 1e6
		raw[1] = -1e6
		p, err := NewPrediction(labels, raw, "v1", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Confidence).To(Equal(1.0))
		Expect(p.Scores[len(p.Scores)-1].Probability).To(Equal(0.0))
	})

	It("caps TopK at the label count", func() {
		p, err := NewPrediction(labels[:2], []float64{0, 1}, "v1", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.TopK).To(HaveLen(2))
	})

	DescribeTable("rejects malformed scores",
		func(ls []constants.FieldType, raw []float64) {
			_, err := NewPrediction(ls, raw, "v1", 3)
			Expect(err).To(HaveOccurred())
		},
		Entry("no labels", nil, nil),
		Entry("length mismatch", labels[:2], []float64{1}),
		Entry("NaN", labels[:2], []float64{math.NaN(), 1}),
		Entry("infinity", labels[:2], []float64{math.Inf(1), 1}),
	)
})
