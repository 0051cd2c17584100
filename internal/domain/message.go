package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is append-only. Ordering within a conversation is by Seq (assigned
// under the conversation lock), which also breaks created_at ties.
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_message_conv_seq,unique,priority:1" json:"conversation_id"`
	UserID         string    `gorm:"type:text;not null;index" json:"user_id"`

	Seq  int64  `gorm:"not null;index:idx_message_conv_seq,unique,priority:2" json:"seq"`
	Role string `gorm:"type:text;not null" json:"role"`

	Content string `gorm:"type:text;not null;default:''" json:"content"`

	Sources       datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"sources,omitempty"`
	Confidence    *float64       `json:"confidence,omitempty"`
	ThinkingSteps datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"thinking_steps,omitempty"`
	TokenCounts   datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"token_counts,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (Message) TableName() string { return "message" }
