package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

type JobRunRepo interface {
	Enqueue(dbc dbctx.Context, row *domain.JobRun) error
	ClaimNextRunnable(ctx context.Context, db *gorm.DB, maxAttempts int, retryDelay, staleRunning time.Duration) (*domain.JobRun, error)
	MarkDone(dbc dbctx.Context, id uuid.UUID) error
	MarkFailed(dbc dbctx.Context, id uuid.UUID, cause string, retryDelay time.Duration) error
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, log *logger.Logger) JobRunRepo {
	return &jobRunRepo{db: db, log: log.With("repo", "JobRunRepo")}
}

func (r *jobRunRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *jobRunRepo) Enqueue(dbc dbctx.Context, row *domain.JobRun) error {
	if row == nil || row.JobType == "" {
		return fmt.Errorf("missing job")
	}
	if row.Status == "" {
		row.Status = domain.JobStatusQueued
	}
	if row.RunAfter.IsZero() {
		row.RunAfter = time.Now().UTC()
	}
	return r.tx(dbc).WithContext(dbc.Ctx).Create(row).Error
}

// ClaimNextRunnable atomically claims one runnable job with SKIP LOCKED, so
// multiple workers never double-run a job. Stale running jobs are reclaimed.
func (r *jobRunRepo) ClaimNextRunnable(ctx context.Context, db *gorm.DB, maxAttempts int, retryDelay, staleRunning time.Duration) (*domain.JobRun, error) {
	if db == nil {
		db = r.db
	}
	now := time.Now().UTC()
	staleBefore := now.Add(-staleRunning)

	var claimed *domain.JobRun
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row domain.JobRun
		err := tx.Raw(`
			SELECT * FROM "job_run"
			WHERE (status = ? AND run_after <= ? AND attempts < ?)
			   OR (status = ? AND updated_at < ?)
			ORDER BY run_after ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`, domain.JobStatusQueued, now, maxAttempts, domain.JobStatusRunning, staleBefore).
			Scan(&row).Error
		if err != nil {
			return err
		}
		if row.ID == uuid.Nil {
			return nil
		}
		started := now
		if err := tx.Model(&domain.JobRun{}).
			Where("id = ?", row.ID).
			Updates(map[string]interface{}{
				"status":     domain.JobStatusRunning,
				"attempts":   gorm.Expr("attempts + 1"),
				"started_at": &started,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		row.Status = domain.JobStatusRunning
		row.Attempts++
		row.StartedAt = &started
		claimed = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRunRepo) MarkDone(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	now := time.Now().UTC()
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.JobRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusDone,
			"done_at":    &now,
			"updated_at": now,
		}).Error
}

func (r *jobRunRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, cause string, retryDelay time.Duration) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	now := time.Now().UTC()
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.JobRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusQueued,
			"last_error": cause,
			"run_after":  now.Add(retryDelay),
			"updated_at": now,
		}).Error
}
