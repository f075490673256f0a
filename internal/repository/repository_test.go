package repository

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

func openTestStore() *Store {
	dsn := "file:" + filepath.Join(GinkgoT().TempDir(), "invoices.db") + "?_pragma=foreign_keys(1)"
	store, err := Open(context.Background(), Config{Driver: "sqlite", DSN: dsn, DialTimeout: time.Second}, nil)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(store.Close)
	Expect(store.Migrate(context.Background())).To(Succeed())
	return store
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func invoice(number, issuer string, date *time.Time, gross string) entity.InvoiceRecord {
	return entity.InvoiceRecord{
		ID:            uuid.New(),
		InvoiceNumber: number,
		IssuerName:    issuer,
		InvoiceDate:   date,
		GrossTotal:    amount(gross),
		NetTotal:      amount("80.00"),
		Confidence:    0.82,
		SourcePath:    "/in/" + number + ".pdf",
		ModelVersion:  "rules-v1",
	}
}

var _ = Describe("Store", func() {
	It("rejects unknown drivers", func() {
		_, err := Open(context.Background(), Config{Driver: "oracle"}, nil)
		Expect(err).To(MatchError(common.ErrInvalidInput))
	})

	It("pings a migrated store", func() {
		store := openTestStore()
		Expect(store.HealthCheck(context.Background(), time.Second)).To(Succeed())
		Expect(store.Migrate(context.Background())).To(Succeed())
	})
})

var _ = Describe("InvoiceRepository", func() {
	var (
		ctx  context.Context
		repo *InvoiceRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = openTestStore().Invoices()
	})

	It("inserts and reloads a record", func() {
		rec := invoice("2024-001", "Muster Handel GmbH", day(2024, 3, 12), "95.20")
		rec.City = "Berlin"

		saved, updated, err := repo.Save(ctx, rec)
		Expect(err).NotTo(HaveOccurred())
		Expect(updated).To(BeFalse())
		Expect(saved.ID).To(Equal(rec.ID))
		Expect(saved.InvoiceNumber).To(Equal("2024-001"))
		Expect(saved.City).To(Equal("Berlin"))
		Expect(*saved.InvoiceDate).To(Equal(*rec.InvoiceDate))
		Expect(saved.GrossTotal.Equal(*rec.GrossTotal)).To(BeTrue())
		Expect(saved.VatTotal).To(BeNil())
		Expect(saved.Confidence).To(Equal(0.82))
		Expect(saved.CreatedAt).NotTo(BeZero())

		got, err := repo.Get(ctx, rec.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ModelVersion).To(Equal("rules-v1"))
	})

	It("updates the row with the same issuer and number", func() {
		first, _, err := repo.Save(ctx, invoice("2024-001", "Muster Handel GmbH", day(2024, 3, 12), "95.20"))
		Expect(err).NotTo(HaveOccurred())

		again := invoice("2024-001", "  muster   handel gmbh ", day(2024, 3, 12), "96.00")
		again.NeedsReview = true
		saved, updated, err := repo.Save(ctx, again)
		Expect(err).NotTo(HaveOccurred())
		Expect(updated).To(BeTrue())
		Expect(saved.ID).To(Equal(first.ID))
		Expect(saved.GrossTotal.StringFixed(2)).To(Equal("96.00"))
		Expect(saved.NeedsReview).To(BeTrue())

		all, err := repo.List(ctx, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(1))
	})

	It("converges concurrent saves of one invoice on one row", func() {
		const writers = 8
		var wg sync.WaitGroup
		inserted := make(chan bool, writers)
		for i := range writers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				rec := invoice("2024-001", "Muster Handel GmbH", day(2024, 3, 12), "95.20")
				rec.SourcePath = filepath.Join("/in", string(rune('a'+i))+".pdf")
				_, updated, err := repo.Save(ctx, rec)
				Expect(err).NotTo(HaveOccurred())
				inserted <- !updated
			}()
		}
		wg.Wait()
		close(inserted)

		var n int
		for ins := range inserted {
			if ins {
				n++
			}
		}
		Expect(n).To(Equal(1))
		all, err := repo.List(ctx, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(1))
	})

	It("always inserts records without an invoice number", func() {
		for range 2 {
			_, updated, err := repo.Save(ctx, invoice("", "Muster Handel GmbH", day(2024, 3, 12), "95.20"))
			Expect(err).NotTo(HaveOccurred())
			Expect(updated).To(BeFalse())
		}
		all, err := repo.List(ctx, nil, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))
		Expect(all[0].InvoiceNumber).To(BeEmpty())
	})

	It("lists by invoice date range", func() {
		for i, d := range []*time.Time{day(2024, 1, 5), day(2024, 2, 5), day(2024, 3, 5)} {
			_, _, err := repo.Save(ctx, invoice(string(rune('A'+i)), "Muster Handel GmbH", d, "10.00"))
			Expect(err).NotTo(HaveOccurred())
		}
		got, err := repo.List(ctx, day(2024, 2, 1), day(2024, 3, 31))
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
		Expect(got[0].InvoiceNumber).To(Equal("B"))
		Expect(got[1].InvoiceNumber).To(Equal("C"))
	})

	It("reports a missing record", func() {
		_, err := repo.Get(ctx, uuid.New())
		Expect(err).To(MatchError(common.ErrNotFound))
	})

	Describe("FindCandidates", func() {
		BeforeEach(func() {
			for _, rec := range []entity.InvoiceRecord{
				invoice("RE-7", "Muster Handel GmbH", day(2024, 3, 12), "95.20"),
				invoice("X-1", "Other Trading Ltd", day(2024, 3, 12), "12.00"),
				invoice("X-2", "Muster Handel GmbH", day(2024, 3, 12), "40.00"),
				invoice("X-3", "Muster Handel GmbH", day(2024, 3, 13), "40.00"),
			} {
				_, _, err := repo.Save(ctx, rec)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("matches the number case-insensitively or the issuer on the same day", func() {
			got, err := repo.FindCandidates(ctx, invoice("re-7", "MUSTER HANDEL GMBH", day(2024, 3, 12), "1.00"))
			Expect(err).NotTo(HaveOccurred())

			var numbers []string
			for _, r := range got {
				numbers = append(numbers, r.InvoiceNumber)
			}
			Expect(numbers).To(ConsistOf("RE-7", "X-2"))
		})

		It("returns nothing without a number or a dated issuer", func() {
			got, err := repo.FindCandidates(ctx, entity.InvoiceRecord{IssuerName: "Muster Handel GmbH"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})
	})
})

var _ = Describe("RunRepository", func() {
	It("records a run from start to finish", func() {
		ctx := context.Background()
		runs := openTestStore().Runs()

		id, err := runs.Start(ctx, "/in/a.pdf", "abc123")
		Expect(err).NotTo(HaveOccurred())

		run, err := runs.Get(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(run.Status).To(Equal(constants.StateStarted))
		Expect(run.FinishedAt).To(BeNil())
		Expect(run.Success).To(BeNil())

		res := &entity.ExtractionResult{
			DocumentID:        uuid.New(),
			SourcePath:        "/in/a.pdf",
			State:             constants.StateFailed,
			ModelVersion:      "rules-v1",
			OverallConfidence: 0.4,
			Duration:          1500 * time.Millisecond,
			Errors: []entity.Issue{{
				Code: common.CodeRequiredMissing, Message: "InvoiceNumber not found",
				Field: constants.InvoiceNumber, Line: -1, Blocking: true,
			}},
		}
		Expect(runs.Finish(ctx, id, res)).To(Succeed())

		run, err = runs.Get(ctx, id)
		Expect(err).NotTo(HaveOccurred())
		Expect(run.Status).To(Equal(constants.StateFailed))
		Expect(*run.Success).To(BeFalse())
		Expect(run.FinishedAt).NotTo(BeNil())
		Expect(run.Duration).To(Equal(1500 * time.Millisecond))
		Expect(run.Errors).To(Equal(res.Errors))
		Expect(run.Warnings).To(BeEmpty())
		Expect(run.DocumentID).To(Equal(res.DocumentID.String()))
		Expect(string(run.Result)).To(ContainSubstring(`"model_version":"rules-v1"`))
	})

	It("fails to finish an unknown run", func() {
		runs := openTestStore().Runs()
		err := runs.Finish(context.Background(), uuid.New(), &entity.ExtractionResult{State: constants.StateSucceeded})
		Expect(err).To(MatchError(common.ErrNotFound))
	})
})
