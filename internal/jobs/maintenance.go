package jobs

import (
	"context"
	"time"

	"github.com/docsense/docsense-backend/internal/data/repos"
	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

// Maintenance runs the periodic housekeeping that does not belong on any
// request path: closing idle conversations and scheduling the daily alias
// decay.
type Maintenance struct {
	log           *logger.Logger
	conversations repos.ConversationRepo
	jobs          repos.JobRunRepo

	interval   time.Duration
	idleAfter  time.Duration
	decayEvery time.Duration

	lastDecay time.Time
}

func NewMaintenance(log *logger.Logger, conversations repos.ConversationRepo, jobs repos.JobRunRepo, idleAfter time.Duration) *Maintenance {
	if idleAfter <= 0 {
		idleAfter = 24 * time.Hour
	}
	return &Maintenance{
		log:           log.With("component", "Maintenance"),
		conversations: conversations,
		jobs:          jobs,
		interval:      15 * time.Minute,
		idleAfter:     idleAfter,
		decayEvery:    24 * time.Hour,
	}
}

func (m *Maintenance) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		m.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				m.log.Info("Maintenance loop stopped")
				return
			case <-ticker.C:
				m.tick(ctx)
			}
		}
	}()
}

func (m *Maintenance) tick(ctx context.Context) {
	dbc := dbctx.Context{Ctx: ctx}

	closed, err := m.conversations.CloseIdle(dbc, time.Now().UTC().Add(-m.idleAfter))
	if err != nil {
		m.log.Warn("Idle conversation sweep failed", "error", err.Error())
	} else if closed > 0 {
		m.log.Info("Closed idle conversations", "count", closed)
	}

	if time.Since(m.lastDecay) >= m.decayEvery {
		err := m.jobs.Enqueue(dbc, &domain.JobRun{JobType: domain.JobTypeAliasDecay})
		if err != nil {
			m.log.Warn("Alias decay enqueue failed", "error", err.Error())
			return
		}
		m.lastDecay = time.Now().UTC()
	}
}
