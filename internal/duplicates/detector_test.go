package duplicates

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

type failingSource struct{}

func (failingSource) FindCandidates(context.Context, entity.InvoiceRecord) ([]entity.InvoiceRecord, error) {
	return nil, errors.New("db down")
}

func record(number, issuer string, day int, gross string) entity.InvoiceRecord {
	r := entity.InvoiceRecord{ID: uuid.New(), InvoiceNumber: number, IssuerName: issuer}
	if day > 0 {
		d := time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)
		r.InvoiceDate = &d
	}
	if gross != "" {
		g := decimal.RequireFromString(gross)
		r.GrossTotal = &g
	}
	return r
}

var _ = Describe("Detector", func() {
	var (
		src *MemorySource
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		src = NewMemorySource(
			record("2024-001", "Acme Supplies GmbH", 12, "95.20"),
			record("RE-77", "Beta Handel AG", 1, "10.00"),
		)
	})

	It("flags an identical invoice number with the fixed score", func() {
		res, err := New(src, nil, nil).Check(ctx, record(" 2024-001 ", "Someone Else", 0, ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.HasDuplicates).To(BeTrue())
		Expect(res.SimilarityScore).To(Equal(0.9))
		Expect(res.MatchType).To(Equal(constants.MatchSimilar))
		Expect(res.Matches).To(HaveLen(1))
		Expect(res.Matches[0].MatchedOn).To(Equal([]string{OnInvoiceNumber}))
	})

	It("compares invoice numbers case-insensitively", func() {
		res, err := New(src, nil, nil).Check(ctx, record("re-77", "", 0, ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.HasDuplicates).To(BeTrue())
	})

	It("matches issuer and date together", func() {
		res, err := New(src, nil, nil).Check(ctx, record("X-1", "acme   supplies gmbh", 12, ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.HasDuplicates).To(BeTrue())
		Expect(res.Matches[0].MatchedOn).To(Equal([]string{OnIssuer, OnDate}))
	})

	It("does not match on issuer alone", func() {
		res, err := New(src, nil, nil).Check(ctx, record("X-1", "Acme Supplies GmbH", 13, "95.20"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.HasDuplicates).To(BeFalse())
		Expect(res.MatchType).To(Equal(constants.MatchNone))
		Expect(res.SimilarityScore).To(Equal(0.0))
	})

	It("reports an exact match when every identifying field agrees", func() {
		res, err := New(src, nil, nil).Check(ctx, record("2024-001", "Acme Supplies GmbH", 12, "95.2"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.MatchType).To(Equal(constants.MatchExact))
		Expect(res.SimilarityScore).To(Equal(0.9))
	})

	It("skips the record itself", func() {
		self := record("2024-001", "Acme Supplies GmbH", 12, "95.20")
		src = NewMemorySource(self)
		res, err := New(src, nil, nil).Check(ctx, self)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.HasDuplicates).To(BeFalse())
	})

	DescribeTable("weighted overlap grades matches",
		func(candidate entity.InvoiceRecord, score float64, mt constants.MatchType) {
			res, err := New(src, WeightedOverlap{}, nil).Check(ctx, candidate)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.SimilarityScore).To(BeNumerically("~", score, 1e-9))
			Expect(res.MatchType).To(Equal(mt))
		},
		Entry("number only", record("2024-001", "Other", 0, ""), 0.5, constants.MatchPotential),
		Entry("number and issuer", record("2024-001", "Acme Supplies GmbH", 0, ""), 0.7, constants.MatchSimilar),
		Entry("issuer and date", record("X", "Acme Supplies GmbH", 12, ""), 0.35, constants.MatchPotential),
		Entry("everything", record("2024-001", "Acme Supplies GmbH", 12, "95.20"), 1.0, constants.MatchExact),
	)

	It("orders matches by score", func() {
		src.Add(record("2024-001", "Acme Supplies GmbH", 0, ""))
		res, err := New(src, WeightedOverlap{}, nil).Check(ctx, record("2024-001", "Acme Supplies GmbH", 0, ""))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Matches).To(HaveLen(2))
		Expect(res.Matches[0].Score).To(BeNumerically(">=", res.Matches[1].Score))
	})

	It("surfaces source errors", func() {
		_, err := New(failingSource{}, nil, nil).Check(ctx, record("1", "", 0, ""))
		Expect(err).To(MatchError(ContainSubstring("db down")))
	})

	It("resolves policies by name", func() {
		p, err := PolicyByName("weighted")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name()).To(Equal("weighted"))
		p, err = PolicyByName("")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name()).To(Equal("fixed"))
		_, err = PolicyByName("fuzzy")
		Expect(err).To(HaveOccurred())
	})
})
