package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func setenv(key, value string) {
	prev, had := os.LookupEnv(key)
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(func() {
		if had {
			_ = os.Setenv(key, prev)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

var _ = Describe("Config", func() {
	It("has valid defaults", func() {
		cfg := LoadConfig()
		Expect(cfg.Validate()).To(Succeed())
		Expect(cfg.Pipeline.RequiredFields).To(ConsistOf("InvoiceNumber", "InvoiceDate", "IssuerName", "GrossTotal"))
		Expect(cfg.Pipeline.Normalization.MergeLines).To(BeTrue())
		Expect(cfg.Pipeline.Normalization.MergeGapRatio).To(Equal(0.5))
		Expect(cfg.Classifier.Backend).To(Equal("embedded"))
	})

	It("reads the environment", func() {
		setenv("CONFIDENCE_THRESHOLD", "0.85")
		setenv("REQUIRED_FIELDS", "invoice_number, vendor ,")
		setenv("DOCUMENT_TIMEOUT", "45s")
		setenv("STRICT_VALIDATION", "true")
		setenv("BATCH_WORKERS", "not-a-number")

		cfg := LoadConfig()
		Expect(cfg.Pipeline.ConfidenceThreshold).To(Equal(0.85))
		Expect(cfg.Pipeline.RequiredFields).To(Equal([]string{"invoice_number", "vendor"}))
		Expect(cfg.Pipeline.DocumentTimeout).To(Equal(45 * time.Second))
		Expect(cfg.Pipeline.Strict).To(BeTrue())
		Expect(cfg.Batch.Workers).To(Equal(4))
	})

	It("overlays a YAML file on the environment", func() {
		setenv("TOP_K", "5")
		path := filepath.Join(GinkgoT().TempDir(), "config.yaml")
		Expect(os.WriteFile(path, []byte(`
database:
  driver: postgres
  dsn: postgres://localhost/invoices
pipeline:
  confidence_threshold: 0.6
  normalization:
    merge_lines: false
duplicates:
  policy: weighted
`), 0o644)).To(Succeed())

		cfg, err := LoadConfigFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Database.Driver).To(Equal("postgres"))
		Expect(cfg.Pipeline.ConfidenceThreshold).To(Equal(0.6))
		Expect(cfg.Pipeline.Normalization.MergeLines).To(BeFalse())
		Expect(cfg.Pipeline.Normalization.Unicode).To(BeTrue())
		Expect(cfg.Pipeline.TopK).To(Equal(5))
		Expect(cfg.Duplicates.Policy).To(Equal("weighted"))
		Expect(cfg.Validate()).To(Succeed())
	})

	It("reports unreadable and malformed files as config errors", func() {
		_, err := LoadConfigFile(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
		Expect(CodeOf(err)).To(Equal(CodeConfig))

		path := filepath.Join(GinkgoT().TempDir(), "bad.yaml")
		Expect(os.WriteFile(path, []byte("pipeline: [1, 2"), 0o644)).To(Succeed())
		_, err = LoadConfigFile(path)
		Expect(CodeOf(err)).To(Equal(CodeConfig))
		Expect(errors.Is(err, ErrInvalidInput)).To(BeTrue())
	})

	DescribeTable("Validate rejects",
		func(mutate func(*Config), field string) {
			cfg := LoadConfig()
			mutate(cfg)
			err := cfg.Validate()
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, ErrInvalidInput)).To(BeTrue())
			Expect(CodeOf(err)).To(Equal(CodeConfig))
			Expect(err.Error()).To(ContainSubstring(field))
		},
		Entry("an unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"),
		Entry("an unknown extractor", func(c *Config) { c.Extractor.Backend = "ocr" }, "extractor.backend"),
		Entry("a threshold above one", func(c *Config) { c.Pipeline.ConfidenceThreshold = 1.5 }, "pipeline.confidence_threshold"),
		Entry("inverted bands", func(c *Config) { c.Pipeline.LowThreshold, c.Pipeline.HighThreshold = 0.9, 0.5 }, "pipeline.low_threshold"),
		Entry("a bad tolerance", func(c *Config) { c.Pipeline.AmountTolerance = "two cents" }, "pipeline.amount_tolerance"),
		Entry("remote without a URL", func(c *Config) { c.Classifier.Backend, c.Classifier.RemoteURL = "remote", "" }, "classifier.remote_url"),
		Entry("an unknown policy", func(c *Config) { c.Duplicates.Policy = "fuzzy" }, "duplicates.policy"),
		Entry("no workers", func(c *Config) { c.Batch.Workers = 0 }, "batch.workers"),
	)
})

var _ = Describe("ToStatus", func() {
	DescribeTable("maps sentinels to codes",
		func(err error, code codes.Code) {
			Expect(status.Code(ToStatus(err))).To(Equal(code))
		},
		Entry("invalid input", fmt.Errorf("%w: x", ErrInvalidInput), codes.InvalidArgument),
		Entry("validation", fmt.Errorf("%w: x", ErrValidation), codes.InvalidArgument),
		Entry("not found", fmt.Errorf("%w: x", ErrNotFound), codes.NotFound),
		Entry("no model", NewAppError(CodeClassifier, "predict", ErrNoModel), codes.Unavailable),
		Entry("collaborator", fmt.Errorf("%w: x", ErrCollaborator), codes.Unavailable),
		Entry("anything else", errors.New("boom"), codes.Internal),
	)

	It("passes nil through", func() {
		Expect(ToStatus(nil)).To(Succeed())
	})
})

var _ = Describe("context helpers", func() {
	It("carries request and document ids", func() {
		ctx := WithDocumentID(WithRequestID(context.Background(), "req-1"), "doc-1")
		Expect(RequestIDFromContext(ctx)).To(Equal("req-1"))
		Expect(DocumentIDFromContext(ctx)).To(Equal("doc-1"))
		Expect(RequestIDFromContext(context.Background())).To(BeEmpty())
	})

	It("skips the deadline for a non-positive timeout", func() {
		ctx, cancel := WithTimeout(context.Background(), 0)
		_, ok := ctx.Deadline()
		Expect(ok).To(BeFalse())
		cancel()
		Expect(ctx.Err()).To(MatchError(context.Canceled))

		ctx, cancel = WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, ok = ctx.Deadline()
		Expect(ok).To(BeTrue())
	})
})
