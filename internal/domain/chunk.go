package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

var chunkNamespace = uuid.MustParse("4c1a9d7f-6e2b-4a08-9f53-2d8b0c6e1a77")

// ChunkID derives the stable chunk ID from its parent document and ordinal,
// so re-embedding an unchanged document is idempotent.
func ChunkID(documentID uuid.UUID, ordinal int) uuid.UUID {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s:%d", documentID, ordinal)))
}

// Chunk is the retrieval unit. Chunks are created and replaced atomically
// with their parent document.
type Chunk struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	Ordinal    int       `gorm:"not null" json:"ordinal"`

	Text        string         `gorm:"type:text;not null" json:"text"`
	SectionPath datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"section_path,omitempty"`
	TokenCount  int            `gorm:"not null;default:0" json:"token_count"`

	SemanticTags datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"semantic_tags,omitempty"`

	Embedding datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"embedding"`
	VectorID  string         `gorm:"type:text;not null;index" json:"vector_id"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Chunk) TableName() string { return "chunk" }
