// Package ingest finds invoice PDFs on disk and streams new arrivals.
package ingest

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/constants"
)

// IngestionResult is the per-file intake outcome.
type IngestionResult struct {
	SourcePath string
	HashHex    string
	Size       int64
	ModTime    time.Time
	// DuplicateOf is set when the same bytes were already seen in this run.
	DuplicateOf string
	Err         string
}

// DirStats summarizes a directory walk.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

var defaultExts = constants.AllowedExtensions

func allowed(path string, exts map[string]struct{}) bool {
	_, ok := exts[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}

// IsHidden reports whether a file or directory name starts with '.'.
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return base != "." && base != ".." && strings.HasPrefix(base, ".")
}
