package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

const (
	JobTypeAliasDiscovery = "alias_discovery"
	JobTypeAliasDecay     = "alias_decay"
	JobTypeWikiCrawl      = "wiki_crawl"
)

// JobRun is a queued background task claimed and executed by the job worker.
type JobRun struct {
	ID      uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobType string    `gorm:"type:text;not null;index" json:"job_type"`
	Status  string    `gorm:"type:text;not null;default:'queued';index" json:"status"`

	Payload datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"payload,omitempty"`

	Attempts  int        `gorm:"not null;default:0" json:"attempts"`
	LastError string     `gorm:"type:text;not null;default:''" json:"last_error,omitempty"`
	RunAfter  time.Time  `gorm:"not null;default:now();index" json:"run_after"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	DoneAt    *time.Time `json:"done_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (JobRun) TableName() string { return "job_run" }
