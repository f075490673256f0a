// Package extract reads positioned words from PDF text layers.
package extract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// WordExtractor reads every page's words with top-left page coordinates.
type WordExtractor interface {
	Extract(ctx context.Context, path string) (entity.Document, error)
}

// Config tunes the extractors. Zero values take defaults.
type Config struct {
	MaxPages int // 0 reads every page
	// WordGapRatio splits glyphs into words when the horizontal gap exceeds
	// this fraction of the font size.
	WordGapRatio float64
	// RowTolerance is the baseline distance, in points, within which glyphs
	// share a row.
	RowTolerance float64
	Pdftotext    string
}

func (c Config) withDefaults() Config {
	if c.WordGapRatio <= 0 {
		c.WordGapRatio = 0.3
	}
	if c.RowTolerance <= 0 {
		c.RowTolerance = 2
	}
	if c.Pdftotext == "" {
		c.Pdftotext = "pdftotext"
	}
	return c
}

// FromConfig picks the extractor named by cfg.Backend.
func FromConfig(cfg common.ExtractorConfig, logger *slog.Logger) (WordExtractor, error) {
	c := Config{MaxPages: cfg.MaxPages, Pdftotext: cfg.Pdftotext}
	switch cfg.Backend {
	case "", "native":
		return NewNativeExtractor(c, logger), nil
	case "poppler":
		return NewPopplerExtractor(c, nil, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown extractor backend %q", common.ErrInvalidInput, cfg.Backend)
	}
}
