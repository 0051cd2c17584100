package retrieval

import (
	"github.com/google/uuid"

	"github.com/docsense/docsense-backend/internal/data/repos"
	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
)

// LoadKeywordIndex rebuilds the lexical index from the chunk and document
// tables. Called at startup and after every ingest batch.
func LoadKeywordIndex(dbc dbctx.Context, ix *KeywordIndex, chunks repos.ChunkRepo, docs repos.DocumentRepo) error {
	docCache := map[uuid.UUID]*domain.Document{}
	var after *uuid.UUID
	for {
		page, err := chunks.ListPage(dbc, after, 500)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		missing := make([]uuid.UUID, 0, len(page))
		for _, c := range page {
			if _, ok := docCache[c.DocumentID]; !ok {
				missing = append(missing, c.DocumentID)
			}
		}
		if len(missing) > 0 {
			rows, err := docs.GetByIDs(dbc, missing)
			if err != nil {
				return err
			}
			for _, d := range rows {
				docCache[d.ID] = d
			}
		}
		for _, c := range page {
			doc, ok := docCache[c.DocumentID]
			if !ok {
				continue
			}
			ix.Put(ChunkMeta{
				ChunkID:      c.ID,
				DocumentID:   doc.ID,
				Title:        doc.Title,
				URL:          doc.SourceURL,
				SourceKind:   doc.SourceKind,
				LastModified: doc.LastModified,
				Text:         c.Text,
				AliasTags:    repos.ParseStringsJSON(c.SemanticTags),
			})
		}
		last := page[len(page)-1].ID
		after = &last
	}
}
