package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docsense/docsense-backend/internal/data/repos"
	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
	"github.com/docsense/docsense-backend/internal/utils"
)

const (
	maxAttempts  = 5
	retryDelay   = 30 * time.Second
	staleRunning = 30 * time.Minute
	pollInterval = time.Second
)

// Worker claims queued jobs from the database and dispatches them to the
// registry. Multiple replicas can run workers concurrently; the claim query
// uses SKIP LOCKED so a job never double-runs.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *Registry
}

func NewWorker(db *gorm.DB, log *logger.Logger, repo repos.JobRunRepo, registry *Registry) *Worker {
	return &Worker{
		db:       db,
		log:      log.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
	}
}

func (w *Worker) Start(ctx context.Context) {
	concurrency := utils.GetEnvAsInt("WORKER_CONCURRENCY", 2, w.log)
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("Starting job worker pool", "concurrency", concurrency)

	for i := 0; i < concurrency; i++ {
		workerID := i + 1
		go w.runLoop(ctx, workerID)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(ctx, w.db, maxAttempts, retryDelay, staleRunning)
			if err != nil {
				w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err.Error())
				continue
			}
			if job == nil {
				continue
			}

			h, ok := w.registry.Get(job.JobType)
			if !ok {
				w.log.Warn("No handler registered for job_type",
					"worker_id", workerID, "job_type", job.JobType, "job_id", job.ID)
				w.markFailed(ctx, job.ID, fmt.Errorf("no handler for %s", job.JobType))
				continue
			}

			w.runOne(ctx, workerID, h, job)
		}
	}
}

func (w *Worker) runOne(ctx context.Context, workerID int, h Handler, job *domain.JobRun) {
	jc := NewContext(ctx, w.log.With("job_type", job.JobType, "job_id", job.ID.String()), job)

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Job handler panic",
					"worker_id", workerID, "job_id", job.ID, "job_type", job.JobType, "panic", r)
				runErr = fmt.Errorf("panic in %s handler", job.JobType)
			}
		}()
		runErr = h.Run(jc)
	}()

	if runErr != nil {
		w.markFailed(ctx, job.ID, runErr)
		return
	}
	if err := w.repo.MarkDone(dbctx.Context{Ctx: ctx}, job.ID); err != nil {
		w.log.Warn("MarkDone failed", "job_id", job.ID, "error", err.Error())
	}
}

func (w *Worker) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	if err := w.repo.MarkFailed(dbctx.Context{Ctx: ctx}, id, cause.Error(), retryDelay); err != nil {
		w.log.Warn("MarkFailed failed", "job_id", id, "error", err.Error())
	}
}
