package extract

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// Letter size, used when a page carries no usable MediaBox.
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// NativeExtractor reads the text layer in-process.
type NativeExtractor struct {
	cfg    Config
	logger *slog.Logger
}

func NewNativeExtractor(cfg Config, logger *slog.Logger) *NativeExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &NativeExtractor{cfg: cfg.withDefaults(), logger: logger}
}

func (e *NativeExtractor) Extract(ctx context.Context, path string) (doc entity.Document, err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: read %s: %v", common.ErrCollaborator, path, rec)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return doc, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	doc.Path = path
	n := r.NumPage()
	if e.cfg.MaxPages > 0 && n > e.cfg.MaxPages {
		e.logger.Warn("extract.native.truncated", "path", path, "pages", n, "max_pages", e.cfg.MaxPages)
		n = e.cfg.MaxPages
	}
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return doc, err
		}
		page, err := e.readPage(r, i)
		if err != nil {
			return doc, err
		}
		doc.Pages = append(doc.Pages, page)
	}

	e.logger.Debug("extract.native.done",
		"path", path,
		"pages", len(doc.Pages),
		"words", len(doc.Words()),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return doc, nil
}

func (e *NativeExtractor) readPage(r *pdf.Reader, num int) (page entity.Page, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: page %d: %v", common.ErrCollaborator, num, rec)
		}
	}()
	p := r.Page(num)
	page.Number = num
	if p.V.IsNull() {
		page.Width, page.Height = defaultPageWidth, defaultPageHeight
		return page, nil
	}
	x0, y0, w, h := mediaBox(p)
	page.Width, page.Height = w, h

	glyphs := p.Content().Text
	for i := range glyphs {
		glyphs[i].X -= x0
		glyphs[i].Y -= y0
	}
	page.Words = groupGlyphs(glyphs, num, h, e.cfg.WordGapRatio, e.cfg.RowTolerance)
	return page, nil
}

// mediaBox returns the page origin and size, following inherited boxes.
func mediaBox(p pdf.Page) (x0, y0, w, h float64) {
	box := p.V.Key("MediaBox")
	for parent := p.V.Key("Parent"); box.IsNull() && !parent.IsNull(); parent = parent.Key("Parent") {
		box = parent.Key("MediaBox")
	}
	if box.Len() == 4 {
		x0, y0 = box.Index(0).Float64(), box.Index(1).Float64()
		w, h = box.Index(2).Float64()-x0, box.Index(3).Float64()-y0
	}
	if w <= 0 || h <= 0 {
		return 0, 0, defaultPageWidth, defaultPageHeight
	}
	return x0, y0, w, h
}

// groupGlyphs joins glyphs into words. Glyphs share a row when their
// baselines are within rowTol; within a row a whitespace glyph or a gap wider
// than gapRatio times the font size ends the word. Boxes are flipped from
// PDF's bottom-left origin to top-left.
func groupGlyphs(glyphs []pdf.Text, pageNum int, pageHeight, gapRatio, rowTol float64) []entity.Word {
	sorted := slices.Clone(glyphs)
	slices.SortStableFunc(sorted, func(a, b pdf.Text) int {
		return cmp.Compare(b.Y, a.Y)
	})

	var rows [][]pdf.Text
	for _, g := range sorted {
		if n := len(rows); n > 0 && rows[n-1][0].Y-g.Y <= rowTol {
			rows[n-1] = append(rows[n-1], g)
			continue
		}
		rows = append(rows, []pdf.Text{g})
	}

	var words []entity.Word
	for _, row := range rows {
		slices.SortStableFunc(row, func(a, b pdf.Text) int { return cmp.Compare(a.X, b.X) })

		var cur []pdf.Text
		flush := func() {
			if len(cur) > 0 {
				words = append(words, buildWord(cur, pageNum, pageHeight))
				cur = nil
			}
		}
		for _, g := range row {
			if strings.TrimSpace(g.S) == "" {
				flush()
				continue
			}
			if len(cur) > 0 {
				prev := cur[len(cur)-1]
				size := max(prev.FontSize, g.FontSize, 1)
				if g.X-(prev.X+prev.W) > gapRatio*size {
					flush()
				}
			}
			cur = append(cur, g)
		}
		flush()
	}
	return words
}

func buildWord(glyphs []pdf.Text, pageNum int, pageHeight float64) entity.Word {
	var (
		b        strings.Builder
		left     = glyphs[0].X
		right    = glyphs[0].X + glyphs[0].W
		baseline = glyphs[0].Y
		size     = glyphs[0].FontSize
	)
	for _, g := range glyphs {
		b.WriteString(g.S)
		left = min(left, g.X)
		right = max(right, g.X+g.W)
		baseline = min(baseline, g.Y)
		size = max(size, g.FontSize)
	}
	top := max(pageHeight-baseline-size, 0)
	return entity.Word{
		Text:     b.String(),
		Box:      entity.BBox{X: left, Y: top, W: right - left, H: size},
		FontName: glyphs[0].Font,
		FontSize: size,
		Page:     pageNum,
	}
}
