package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// PopplerExtractor shells out to `pdftotext -bbox` and parses its XHTML.
type PopplerExtractor struct {
	cfg    Config
	run    Runner
	logger *slog.Logger
}

// NewPopplerExtractor uses the system runner when run is nil.
func NewPopplerExtractor(cfg Config, run Runner, logger *slog.Logger) *PopplerExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if run == nil {
		run = execRunner{logger: logger}
	}
	return &PopplerExtractor{cfg: cfg.withDefaults(), run: run, logger: logger}
}

func (e *PopplerExtractor) Extract(ctx context.Context, path string) (entity.Document, error) {
	args := []string{"-bbox", "-enc", "UTF-8"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	args = append(args, path, "-")

	stdout, stderr, err := e.run.Run(ctx, e.cfg.Pdftotext, args...)
	if err != nil {
		if ctx.Err() != nil {
			return entity.Document{}, ctx.Err()
		}
		return entity.Document{}, fmt.Errorf("%w: pdftotext %s: %v: %s",
			common.ErrCollaborator, path, err, strings.TrimSpace(string(stderr)))
	}

	doc, err := parseBBox(bytes.NewReader(stdout))
	if err != nil {
		return entity.Document{}, fmt.Errorf("parse pdftotext output: %w", err)
	}
	doc.Path = path
	e.logger.Debug("extract.poppler.done", "path", path, "pages", len(doc.Pages), "words", len(doc.Words()))
	return doc, nil
}

// parseBBox reads `pdftotext -bbox` output. Its coordinates are already
// top-left; the word height stands in for the font size.
func parseBBox(r io.Reader) (entity.Document, error) {
	var (
		doc  entity.Document
		page *entity.Page
		word *entity.Word
	)
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return doc, err
			}
			if page != nil {
				doc.Pages = append(doc.Pages, *page)
			}
			return doc, nil

		case html.StartTagToken:
			tok := z.Token()
			switch tok.Data {
			case "page":
				if page != nil {
					doc.Pages = append(doc.Pages, *page)
				}
				page = &entity.Page{
					Number: len(doc.Pages) + 1,
					Width:  attrFloat(tok, "width"),
					Height: attrFloat(tok, "height"),
				}
			case "word":
				if page == nil {
					return doc, fmt.Errorf("%w: word outside page", common.ErrValidation)
				}
				x0, y0 := attrFloat(tok, "xmin"), attrFloat(tok, "ymin")
				x1, y1 := attrFloat(tok, "xmax"), attrFloat(tok, "ymax")
				word = &entity.Word{
					Page:     page.Number,
					Box:      entity.BBox{X: x0, Y: y0, W: x1 - x0, H: y1 - y0},
					FontSize: y1 - y0,
				}
			}

		case html.TextToken:
			if word != nil {
				word.Text += string(z.Text())
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "word" && word != nil {
				if word.Text = strings.TrimSpace(word.Text); word.Text != "" {
					page.Words = append(page.Words, *word)
				}
				word = nil
			}
		}
	}
}

func attrFloat(tok html.Token, key string) float64 {
	for _, a := range tok.Attr {
		if a.Key == key {
			f, _ := strconv.ParseFloat(a.Val, 64)
			return f
		}
	}
	return 0
}
