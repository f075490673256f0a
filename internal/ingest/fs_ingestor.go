package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/invoice-extractor/internal/async"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// FSIngestor reads from the local filesystem. It remembers every hash it has
// seen, so identical files are reported once per ingestor.
type FSIngestor struct {
	AllowedExts map[string]struct{} // lowercased sans '.'; nil -> pdf only
	logger      *slog.Logger
	seen        map[string]string // hash -> first path
}

func NewFSIngestor(logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{logger: logger, seen: map[string]string{}}
}

func (i *FSIngestor) exts() map[string]struct{} {
	if i.AllowedExts == nil {
		return defaultExts
	}
	return i.AllowedExts
}

// IngestPath hashes one file.
func (i *FSIngestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	var out IngestionResult
	if err := ctx.Err(); err != nil {
		return out, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	if !allowed(abs, i.exts()) {
		return out, fmt.Errorf("%w: unsupported extension %q", common.ErrInvalidInput, filepath.Ext(abs))
	}

	sum, info, err := HashFile(abs)
	if err != nil {
		i.logger.Warn("ingest.file.hash_failed", "path", abs, "error", err)
		return out, err
	}

	out = IngestionResult{SourcePath: abs, HashHex: sum, Size: info.Size(), ModTime: info.ModTime().UTC()}
	if first, ok := i.seen[sum]; ok && first != abs {
		out.DuplicateOf = first
		i.logger.Info("ingest.file.duplicate", "path", abs, "duplicate_of", first)
		return out, nil
	}
	i.seen[sum] = abs
	return out, nil
}

// IngestDirectory walks root, skips hidden entries if requested and hashes
// every matching file. Walk errors are recorded per file; only a bad root or a
// canceled context fails the call.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, fmt.Errorf("%w: root path is required", common.ErrInvalidInput)
	}
	if info, err := os.Stat(root); err != nil {
		return nil, DirStats{}, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	} else if !info.IsDir() {
		return nil, DirStats{}, fmt.Errorf("%w: %s is not a directory", common.ErrInvalidInput, root)
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !allowed(path, i.exts()) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.DuplicateOf != "" {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}

	i.logger.Info("ingest.directory.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return results, stats, nil
}

// HashFile returns the hex sha256 of a file's contents.
func HashFile(path string) (string, fs.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", nil, err
	}
	if info.IsDir() {
		return "", nil, errors.New("is a directory")
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", nil, fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), info, nil
}

// Jobs turns the successfully ingested, non-duplicate files into batch jobs.
func Jobs(results []IngestionResult) []async.Job {
	var jobs []async.Job
	for _, r := range results {
		if r.Err != "" || r.DuplicateOf != "" {
			continue
		}
		jobs = append(jobs, async.Job{Path: r.SourcePath, FileHash: r.HashHex})
	}
	return jobs
}
