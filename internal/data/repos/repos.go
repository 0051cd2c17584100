package repos

import (
	"gorm.io/gorm"

	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

// Set bundles all repositories for app wiring.
type Set struct {
	Documents        DocumentRepo
	Chunks           ChunkRepo
	AliasEdges       AliasEdgeRepo
	Conversations    ConversationRepo
	Messages         MessageRepo
	LearningSessions LearningSessionRepo
	JobRuns          JobRunRepo
}

func Wire(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		Documents:        NewDocumentRepo(db, log),
		Chunks:           NewChunkRepo(db, log),
		AliasEdges:       NewAliasEdgeRepo(db, log),
		Conversations:    NewConversationRepo(db, log),
		Messages:         NewMessageRepo(db, log),
		LearningSessions: NewLearningSessionRepo(db, log),
		JobRuns:          NewJobRunRepo(db, log),
	}
}
