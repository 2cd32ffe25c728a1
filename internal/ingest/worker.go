package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

const defaultQueueSize = 64

// Indexer embeds content and stores it under a tenant.
type Indexer interface {
	Index(ctx context.Context, tenant, id, content, docType string, metadata map[string]string) (string, error)
}

// Job is one document to extract, embed, and index.
type Job struct {
	ID       string
	Tenant   string
	DocType  string
	Format   string
	Data     []byte
	Metadata map[string]string
}

// Worker consumes queued jobs and indexes them asynchronously, so a
// slow embedding call never blocks the submitting request.
type Worker struct {
	indexer Indexer
	jobs    chan Job
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given queue capacity. A capacity
// of 0 uses the default.
func NewWorker(indexer Indexer, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Worker{
		indexer: indexer,
		jobs:    make(chan Job, queueSize),
		logger:  slog.Default(),
	}
}

// Submit enqueues a job, assigning an ID when the caller did not. It
// fails rather than blocks when the queue is full.
func (w *Worker) Submit(job Job) (string, error) {
	if job.Tenant == "" {
		return "", fmt.Errorf("job tenant must not be empty")
	}
	if len(job.Data) == 0 {
		return "", fmt.Errorf("job data must not be empty")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	select {
	case w.jobs <- job:
		return job.ID, nil
	default:
		return "", fmt.Errorf("ingest queue is full")
	}
}

// Run consumes jobs until ctx is cancelled. Job failures are logged,
// never fatal to the worker.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			if err := w.process(ctx, job); err != nil {
				w.logger.Warn("ingest job failed", "job_id", job.ID, "tenant", job.Tenant, "error", err)
			}
		}
	}
}

// RunOnce processes a single queued job, returning false when the queue
// is empty.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	select {
	case job := <-w.jobs:
		return true, w.process(ctx, job)
	default:
		return false, nil
	}
}

func (w *Worker) process(ctx context.Context, job Job) error {
	text, err := ExtractText(job.Data, job.Format)
	if err != nil {
		return fmt.Errorf("extracting text: %w", err)
	}
	if text == "" {
		return fmt.Errorf("document has no extractable text")
	}

	id, err := w.indexer.Index(ctx, job.Tenant, job.ID, text, job.DocType, job.Metadata)
	if err != nil {
		return fmt.Errorf("indexing document: %w", err)
	}
	w.logger.Debug("ingested document", "doc_id", id, "tenant", job.Tenant, "bytes", len(job.Data))
	return nil
}
