package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docsense/docsense-backend/internal/data/repos"
	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/ingest"
	"github.com/docsense/docsense-backend/internal/observability"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

type IngestHandler struct {
	log      *logger.Logger
	ingestor *ingest.Ingestor
	jobs     repos.JobRunRepo
}

func NewIngestHandler(log *logger.Logger, ingestor *ingest.Ingestor, jobs repos.JobRunRepo) *IngestHandler {
	return &IngestHandler{
		log:      log.With("handler", "IngestHandler"),
		ingestor: ingestor,
		jobs:     jobs,
	}
}

type ingestDocumentRequest struct {
	SourceURL    string   `json:"source_url"`
	SourceKind   string   `json:"source_kind"`
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	ContentHTML  bool     `json:"content_is_html"`
	Tags         []string `json:"tags"`
	LastModified string   `json:"last_modified"`
}

// POST /api/v1/ingest/document
func (h *IngestHandler) Document(c *gin.Context) {
	var body ingestDocumentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "malformed_body", err)
		return
	}
	if strings.TrimSpace(body.SourceURL) == "" || strings.TrimSpace(body.Content) == "" {
		RespondError(c, http.StatusBadRequest, "missing_fields", nil)
		return
	}

	lastModified := time.Now().UTC()
	if body.LastModified != "" {
		t, err := time.Parse(time.RFC3339, body.LastModified)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_last_modified", err)
			return
		}
		lastModified = t
	}
	kind := strings.TrimSpace(body.SourceKind)
	if kind == "" {
		kind = domain.SourceKindOther
	}

	res, err := h.ingestor.Ingest(c.Request.Context(), ingest.Input{
		SourceURL:     body.SourceURL,
		SourceKind:    kind,
		Title:         body.Title,
		Content:       body.Content,
		ContentIsHTML: body.ContentHTML,
		Tags:          body.Tags,
		LastModified:  lastModified,
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}

	outcome := "ingested"
	if res.Unchanged {
		outcome = "unchanged"
	}
	observability.Current().RecordIngest(outcome, res.Chunks)
	RespondOK(c, gin.H{
		"document_id": res.DocumentID,
		"chunks":      res.Chunks,
		"unchanged":   res.Unchanged,
	})
}

// POST /api/v1/ingest/crawl
//
// Enqueues a wiki_crawl run; the worker does the walking.
func (h *IngestHandler) Crawl(c *gin.Context) {
	job := &domain.JobRun{JobType: domain.JobTypeWikiCrawl}
	if err := h.jobs.Enqueue(dbctx.Context{Ctx: c.Request.Context()}, job); err != nil {
		RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "job_type": job.JobType})
}
