package app

import (
	"gorm.io/gorm"

	"github.com/docsense/docsense-backend/internal/data/repos"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

type Repos struct {
	Documents        repos.DocumentRepo
	Chunks           repos.ChunkRepo
	AliasEdges       repos.AliasEdgeRepo
	Conversations    repos.ConversationRepo
	Messages         repos.MessageRepo
	LearningSessions repos.LearningSessionRepo
	Jobs             repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Documents:        repos.NewDocumentRepo(db, log),
		Chunks:           repos.NewChunkRepo(db, log),
		AliasEdges:       repos.NewAliasEdgeRepo(db, log),
		Conversations:    repos.NewConversationRepo(db, log),
		Messages:         repos.NewMessageRepo(db, log),
		LearningSessions: repos.NewLearningSessionRepo(db, log),
		Jobs:             repos.NewJobRunRepo(db, log),
	}
}
