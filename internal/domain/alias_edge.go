package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AliasKindParenthetical  = "parenthetical"
	AliasKindDash           = "dash"
	AliasKindHeaderContent  = "header-content"
	AliasKindEmailTeam      = "email-team"
	AliasKindCooccurrence   = "cooccurrence"
	AliasKindConversational = "conversational"
)

// AliasEdge is a learned bidirectional relation between two terms. The pair
// is stored canonically with TermA < TermB; semantics are symmetric.
type AliasEdge struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	TermA string `gorm:"type:text;not null;index:idx_alias_edge_pair,unique,priority:1" json:"term_a"`
	TermB string `gorm:"type:text;not null;index:idx_alias_edge_pair,unique,priority:2" json:"term_b"`

	Kind       string  `gorm:"type:text;not null" json:"kind"`
	Confidence float64 `gorm:"not null" json:"confidence"`

	Reinforcements int       `gorm:"not null;default:0" json:"reinforcements"`
	FirstSeen      time.Time `gorm:"not null" json:"first_seen"`
	LastSeen       time.Time `gorm:"not null;index" json:"last_seen"`

	ProvenanceDocs datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"provenance_docs,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (AliasEdge) TableName() string { return "alias_edge" }

// CanonicalPair orders two normalized terms into storage order.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
