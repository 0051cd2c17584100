package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SourceKindWiki       = "wiki"
	SourceKindConfluence = "confluence"
	SourceKindSharePoint = "sharepoint"
	SourceKindGitHub     = "github"
	SourceKindOther      = "other"
)

var documentNamespace = uuid.MustParse("7b8f2a4e-91c3-4f6d-b0a2-5e7d1c9a3f40")

// DocumentID derives the stable document ID from its absolute source URL.
func DocumentID(sourceURL string) uuid.UUID {
	return uuid.NewSHA1(documentNamespace, []byte(sourceURL))
}

// Document is a canonical wiki page. Rows are replaced (never mutated in
// place) when the content hash changes.
type Document struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SourceURL  string    `gorm:"type:text;not null;uniqueIndex" json:"source_url"`
	SourceKind string    `gorm:"type:text;not null;default:'wiki';index" json:"source_kind"`

	Title string `gorm:"type:text;not null" json:"title"`
	Text  string `gorm:"type:text;not null" json:"text"`

	ContentHash  string         `gorm:"type:text;not null;index" json:"content_hash"`
	Tags         datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"tags,omitempty"`
	LastModified time.Time      `gorm:"not null;index" json:"last_modified"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Document) TableName() string { return "document" }

// Authority maps a source kind to its static trust score.
func Authority(sourceKind string) float64 {
	switch sourceKind {
	case SourceKindWiki:
		return 0.9
	case SourceKindConfluence:
		return 0.8
	case SourceKindSharePoint, SourceKindGitHub:
		return 0.7
	default:
		return 0.5
	}
}
