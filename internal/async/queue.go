package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
)

var (
	ErrQueueClosed = errors.New("queue is shutting down")
	ErrCanceled    = errors.New("batch canceled before document started")
)

// Job is one PDF submitted for import.
type Job struct {
	Path        string
	FileHash    string
	SubmittedAt time.Time
	Index       int // position in the submitted batch
}

// Result is what a worker produced for a job. Skipped jobs never reached the
// pipeline and carry ErrCanceled.
type Result struct {
	Job     Job
	Outcome pipeline.Outcome
	Err     error
	Skipped bool
	Elapsed time.Duration
}

// FileProcessor is the per-document import flow.
type FileProcessor interface {
	ProcessFile(ctx context.Context, path, fileHash string) (pipeline.Outcome, error)
}

// Handler receives each result. It is called from worker goroutines and must
// be safe for concurrent use.
type Handler func(ctx context.Context, res Result)

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
