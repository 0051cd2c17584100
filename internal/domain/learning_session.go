package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// LearningSession is the per-request pipeline audit record: what the intent
// analyzer decided, what retrieval returned, and how the answer scored.
type LearningSession struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID         string     `gorm:"type:text;not null;index" json:"user_id"`
	ConversationID *uuid.UUID `gorm:"type:uuid;index" json:"conversation_id,omitempty"`
	RequestID      string     `gorm:"type:text;not null;default:'';index" json:"request_id,omitempty"`

	Query         string `gorm:"type:text;not null" json:"query"`
	IntentType    string `gorm:"type:text;not null;default:''" json:"intent_type"`
	RetrievalMode string `gorm:"type:text;not null;default:''" json:"retrieval_mode"`

	SourceCount   int     `gorm:"not null;default:0" json:"source_count"`
	ConflictCount int     `gorm:"not null;default:0" json:"conflict_count"`
	Confidence    float64 `gorm:"not null;default:0" json:"confidence"`

	PromptTokens     int `gorm:"not null;default:0" json:"prompt_tokens"`
	CompletionTokens int `gorm:"not null;default:0" json:"completion_tokens"`

	Steps datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"steps,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (LearningSession) TableName() string { return "learning_session" }
