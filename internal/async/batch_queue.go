package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BatchQueue runs imports on a bounded pool of workers. Canceling the batch
// context stops workers from starting new documents; a document already in
// flight finishes under its own timeout.
type BatchQueue struct {
	batch   context.Context
	proc    FileProcessor
	handler Handler
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*BatchQueue)

func WithWorkers(n int) Option {
	return func(q *BatchQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *BatchQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *BatchQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithHandler(h Handler) Option {
	return func(q *BatchQueue) {
		q.handler = h
	}
}

// NewBatchQueue starts the workers. ctx is the batch context.
func NewBatchQueue(ctx context.Context, proc FileProcessor, logger *slog.Logger, opts ...Option) *BatchQueue {
	q := newBatchQueue(ctx, proc, logger, opts...)
	q.start()
	return q
}

func newBatchQueue(ctx context.Context, proc FileProcessor, logger *slog.Logger, opts ...Option) *BatchQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &BatchQueue{
		batch:   ctx,
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *BatchQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("batch.worker.started", "worker_id", workerID)
				for job := range q.ch {
					q.emit(q.run(workerID, job))
				}
				q.logger.Debug("batch.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *BatchQueue) run(workerID int, job Job) Result {
	if err := q.batch.Err(); err != nil {
		q.logger.Info("batch.document.skipped", "worker_id", workerID, "path", job.Path)
		return Result{Job: job, Err: fmt.Errorf("%w: %v", ErrCanceled, err), Skipped: true}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(q.batch), q.timeout)
	defer cancel()

	start := time.Now()
	out, err := q.proc.ProcessFile(ctx, job.Path, job.FileHash)
	res := Result{Job: job, Outcome: out, Err: err, Elapsed: time.Since(start)}

	switch {
	case err != nil:
		q.logger.Error("batch.document.failed", "worker_id", workerID, "path", job.Path, "error", err)
	case out.Result != nil && !out.Result.Success:
		q.logger.Warn("batch.document.rejected", "worker_id", workerID, "path", job.Path, "errors", len(out.Result.Errors))
	default:
		q.logger.Info("batch.document.done", "worker_id", workerID, "path", job.Path, "elapsed_ms", res.Elapsed.Milliseconds())
	}
	return res
}

func (q *BatchQueue) emit(res Result) {
	if q.handler != nil {
		q.handler(q.batch, res)
	}
}

// Enqueue blocks while the queue is full, until ctx is done.
func (q *BatchQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("batch.enqueue.closed", "path", job.Path)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("batch.enqueue.ok", "path", job.Path)
		return nil
	default:
	}
	q.logger.Warn("batch.enqueue.backpressure", "path", job.Path)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and waits for queued jobs to drain or ctx to end.
func (q *BatchQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("batch.shutdown.interrupted")
	case <-done:
		q.logger.Info("batch.shutdown.drained")
	}
}

// RunBatch processes jobs and returns one result per job in input order.
// Canceling ctx skips the jobs no worker has started yet.
func RunBatch(ctx context.Context, proc FileProcessor, jobs []Job, logger *slog.Logger, opts ...Option) []Result {
	results := make([]Result, len(jobs))

	q := newBatchQueue(ctx, proc, logger, append(opts, WithQueueSize(max(len(jobs), 1)))...)
	user := q.handler
	q.handler = func(ctx context.Context, res Result) {
		results[res.Job.Index] = res
		if user != nil {
			user(ctx, res)
		}
	}
	q.start()

	for i, job := range jobs {
		job.Index = i
		// The buffer holds every job, so this never blocks.
		_ = q.Enqueue(context.Background(), job)
	}
	q.Shutdown(context.Background())
	return results
}
