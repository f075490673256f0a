package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

func writeFile(dir, name, body string) string {
	p := filepath.Join(dir, name)
	Expect(os.MkdirAll(filepath.Dir(p), 0o755)).To(Succeed())
	Expect(os.WriteFile(p, []byte(body), 0o644)).To(Succeed())
	return p
}

var _ = Describe("FSIngestor", func() {
	var (
		root string
		ing  *FSIngestor
		ctx  context.Context
	)

	BeforeEach(func() {
		root = GinkgoT().TempDir()
		ing = NewFSIngestor(nil)
		ctx = context.Background()
	})

	It("hashes PDFs and reports identical files once", func() {
		a := writeFile(root, "a.pdf", "%PDF-1.4 first")
		b := writeFile(root, "sub/b.PDF", "%PDF-1.4 first")
		c := writeFile(root, "sub/c.pdf", "%PDF-1.4 second")
		writeFile(root, "notes.txt", "ignore me")
		writeFile(root, ".hidden/d.pdf", "%PDF-1.4 hidden")

		results, stats, err := ing.IngestDirectory(ctx, root, true)
		Expect(err).NotTo(HaveOccurred())

		Expect(results).To(HaveLen(3))
		Expect(results[0].SourcePath).To(Equal(a))
		Expect(results[0].HashHex).To(HaveLen(64))
		Expect(results[1].SourcePath).To(Equal(b))
		Expect(results[1].DuplicateOf).To(Equal(a))
		Expect(results[2].SourcePath).To(Equal(c))
		Expect(results[2].HashHex).NotTo(Equal(results[0].HashHex))

		Expect(stats.Matched).To(BeEquivalentTo(3))
		Expect(stats.Succeeded).To(BeEquivalentTo(3))
		Expect(stats.Deduplicated).To(BeEquivalentTo(1))
		Expect(stats.Failed).To(BeZero())

		jobs := Jobs(results)
		Expect(jobs).To(HaveLen(2))
		Expect(jobs[0].Path).To(Equal(a))
		Expect(jobs[1].Path).To(Equal(c))
		Expect(jobs[1].FileHash).To(Equal(results[2].HashHex))
	})

	It("includes hidden entries unless asked to skip them", func() {
		writeFile(root, ".hidden/d.pdf", "%PDF-1.4 hidden")

		results, _, err := ing.IngestDirectory(ctx, root, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
	})

	It("remembers hashes across calls", func() {
		a := writeFile(root, "a.pdf", "same")
		other := GinkgoT().TempDir()
		b := writeFile(other, "b.pdf", "same")

		_, err := ing.IngestPath(ctx, a)
		Expect(err).NotTo(HaveOccurred())
		r, err := ing.IngestPath(ctx, b)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.DuplicateOf).To(Equal(a))

		again, err := ing.IngestPath(ctx, a)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.DuplicateOf).To(BeEmpty())
	})

	It("rejects other extensions", func() {
		p := writeFile(root, "scan.png", "png")
		_, err := ing.IngestPath(ctx, p)
		Expect(errors.Is(err, common.ErrInvalidInput)).To(BeTrue())
	})

	It("rejects a missing root", func() {
		_, _, err := ing.IngestDirectory(ctx, filepath.Join(root, "nope"), false)
		Expect(errors.Is(err, common.ErrInvalidInput)).To(BeTrue())

		_, _, err = ing.IngestDirectory(ctx, " ", false)
		Expect(errors.Is(err, common.ErrInvalidInput)).To(BeTrue())
	})

	It("stops on a canceled context", func() {
		writeFile(root, "a.pdf", "x")
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, _, err := ing.IngestDirectory(cctx, root, false)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	})
})

var _ = Describe("IsHidden", func() {
	It("matches dot names only", func() {
		Expect(IsHidden("/a/.git")).To(BeTrue())
		Expect(IsHidden("/a/b.pdf")).To(BeFalse())
		Expect(IsHidden(".")).To(BeFalse())
	})
})
