package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation groups messages for one user. At most one row per user has
// Active=true, enforced by a partial unique index.
type Conversation struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID string    `gorm:"type:text;not null;index" json:"user_id"`

	Mode   string `gorm:"type:text;not null;default:'company'" json:"mode"`
	Active bool   `gorm:"not null;default:true;index" json:"active"`

	// Summary is the persisted context summary standing in for turns older
	// than the verbatim window; refreshed every few exchanges.
	Summary               string `gorm:"type:text;not null;default:''" json:"summary,omitempty"`
	ExchangesSinceSummary int    `gorm:"not null;default:0" json:"exchanges_since_summary"`

	AuthorsNote string `gorm:"type:text;not null;default:''" json:"authors_note,omitempty"`

	// NextSeq backs per-conversation message ordering.
	NextSeq int64 `gorm:"not null;default:0" json:"next_seq"`

	CreatedAt    time.Time `gorm:"not null;default:now()" json:"created_at"`
	LastActivity time.Time `gorm:"not null;default:now();index" json:"last_activity"`
	UpdatedAt    time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Conversation) TableName() string { return "conversation" }
