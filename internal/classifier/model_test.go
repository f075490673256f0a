package classifier

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/features"
	"github.com/joseph-ayodele/invoice-extractor/internal/patterns"
)

func line(idx int, text string, y float64) entity.NormalizedLine {
	return entity.NormalizedLine{
		Text: text, Original: text, Index: idx, Page: 1, FontSize: 10,
		Box: entity.BBox{X: 50, Y: y, W: 200, H: 10},
	}
}

var _ = Describe("LinearModel", func() {
	schema := features.BuildSchema([]string{"date"})

	artifact := func() Artifact {
		return Artifact{
			Version: "t1",
			Labels:  []string{"InvoiceDate", "Other"},
			Bias:    map[string]float64{"Other": 0.5},
			Weights: map[string]map[string]float64{
				"InvoiceDate": {"regex.date": 2},
			},
		}
	}

	It("binds an artifact to the running schema", func() {
		a, err := artifact().Bind(schema)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.SchemaVersion).To(Equal(schema.Version))

		m, err := NewLinearModel(a)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Labels()).To(Equal([]constants.FieldType{constants.InvoiceDate, constants.Other}))

		rows, err := m.Score(context.Background(), []entity.FeatureVector{
			{SchemaVersion: schema.Version, Values: map[string]float64{"regex.date": 1}},
			{SchemaVersion: schema.Version, Values: map[string]float64{}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(Equal([][]float64{{2, 0.5}, {0, 0.5}}))
	})

	It("refuses weights on keys outside the schema", func() {
		a := artifact()
		a.Weights["InvoiceDate"]["regex.iban"] = 1
		_, err := a.Bind(schema)
		Expect(errors.Is(err, common.ErrSchemaMismatch)).To(BeTrue())
	})

	It("refuses an artifact bound to another schema", func() {
		a := artifact()
		a.SchemaVersion = "fs1-000000000000"
		_, err := a.Bind(schema)
		Expect(errors.Is(err, common.ErrSchemaMismatch)).To(BeTrue())
	})

	It("rejects vectors of another schema version", func() {
		a, _ := artifact().Bind(schema)
		m, _ := NewLinearModel(a)
		_, err := m.Score(context.Background(), []entity.FeatureVector{{SchemaVersion: "fs1-other"}})
		Expect(errors.Is(err, common.ErrSchemaMismatch)).To(BeTrue())
	})

	DescribeTable("validates artifacts",
		func(mutate func(*Artifact)) {
			a, _ := artifact().Bind(schema)
			mutate(&a)
			_, err := NewLinearModel(a)
			Expect(errors.Is(err, common.ErrInvalidInput)).To(BeTrue())
		},
		Entry("missing version", func(a *Artifact) { a.Version = "" }),
		Entry("unbound", func(a *Artifact) { a.SchemaVersion = "" }),
		Entry("unknown label", func(a *Artifact) { a.Labels = append(a.Labels, "Tip") }),
		Entry("repeated label", func(a *Artifact) { a.Labels = append(a.Labels, "Other") }),
		Entry("weights for undeclared label", func(a *Artifact) {
			a.Weights["GrossTotal"] = map[string]float64{"regex.date": 1}
		}),
	)
})

var _ = Describe("embedded rules model", func() {
	var (
		ext  *features.Extractor
		reg  *Registry
		vecs []entity.FeatureVector
	)

	BeforeEach(func() {
		ext = features.New(patterns.Default(nil), features.Config{}, nil)
		reg = NewRegistry(EmbeddedLoader{Schema: ext.Schema()}, RegistryConfig{SchemaVersion: ext.Schema().Version}, nil)
		Expect(reg.Load(context.Background(), "")).To(Succeed())

		lines := []entity.NormalizedLine{
			line(0, "Acme Supplies GmbH", 40),
			line(1, "Hauptstraße 5", 55),
			line(2, "10115 Berlin", 70),
			line(3, "Invoice No. 2024-001", 120),
			line(4, "Date: 12.03.2024", 140),
			line(5, "Thank you for your order", 300),
			line(6, "Net 80.00 EUR", 600),
			line(7, "VAT 19% 15.20 EUR", 620),
			line(8, "Total 95.20 EUR", 640),
		}
		var iss []entity.Issue
		vecs, iss = ext.Extract(lines, entity.Document{Pages: []entity.Page{{Number: 1, Width: 600, Height: 800}}})
		Expect(iss).To(BeEmpty())
	})

	It("is active under its default version", func() {
		Expect(reg.ActiveVersion()).To(Equal(DefaultModelVersion))
		Expect(EmbeddedVersions()).To(ContainElement(DefaultModelVersion))
	})

	It("labels a typical invoice layout", func() {
		preds, err := reg.PredictBatch(context.Background(), vecs)
		Expect(err).NotTo(HaveOccurred())

		got := make([]constants.FieldType, len(preds))
		for i, p := range preds {
			got[i] = p.Label
			Expect(p.ModelVersion).To(Equal(DefaultModelVersion))
			Expect(p.Confidence).To(BeNumerically(">", 0))
			Expect(p.Confidence).To(BeNumerically("<=", 1))
		}
		Expect(got).To(Equal([]constants.FieldType{
			constants.IssuerName,
			constants.IssuerStreet,
			constants.IssuerPostalCode,
			constants.InvoiceNumber,
			constants.InvoiceDate,
			constants.Other,
			constants.NetTotal,
			constants.VatTotal,
			constants.GrossTotal,
		}))
	})

	It("fails to bind when the pattern set lacks a weighted pattern", func() {
		small := features.BuildSchema([]string{"date"})
		_, err := EmbeddedLoader{Schema: small}.Load(context.Background(), "")
		Expect(errors.Is(err, common.ErrSchemaMismatch)).To(BeTrue())
	})

	It("reports unknown embedded versions", func() {
		_, err := EmbeddedLoader{Schema: ext.Schema()}.Load(context.Background(), "rules-v0")
		Expect(errors.Is(err, common.ErrNotFound)).To(BeTrue())
	})
})
