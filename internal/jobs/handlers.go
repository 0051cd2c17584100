package jobs

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/docsense/docsense-backend/internal/alias"
	"github.com/docsense/docsense-backend/internal/data/repos"
	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/ingest"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
)

// AliasDiscoveryHandler runs the detector suite. With a document_id payload
// it scopes to that document; without one it sweeps the whole corpus.
type AliasDiscoveryHandler struct {
	Discovery *alias.Discovery
	Docs      repos.DocumentRepo
	Registry  *alias.Registry
}

func (h *AliasDiscoveryHandler) Type() string { return domain.JobTypeAliasDiscovery }

func (h *AliasDiscoveryHandler) Run(jc *Context) error {
	if docID, ok := jc.PayloadUUID("document_id"); ok {
		doc, err := h.Docs.GetByID(dbctx.Context{Ctx: jc.Ctx}, docID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// The document was purged between enqueue and run.
				jc.Log.Warn("Alias discovery target gone", "document_id", docID)
				return nil
			}
			return err
		}
		if _, _, err := h.Discovery.Apply(jc.Ctx, alias.DetectDocument(doc)); err != nil {
			return err
		}
	} else {
		if _, _, err := h.Discovery.RunFullPass(jc.Ctx); err != nil {
			return err
		}
	}
	return h.Registry.Rebuild(dbctx.Context{Ctx: jc.Ctx})
}

// AliasDecayHandler applies the daily confidence decay and refreshes the
// read view.
type AliasDecayHandler struct {
	Discovery *alias.Discovery
	Registry  *alias.Registry

	DecayFactor float64
	IdleAfter   time.Duration
}

func (h *AliasDecayHandler) Type() string { return domain.JobTypeAliasDecay }

func (h *AliasDecayHandler) Run(jc *Context) error {
	factor := h.DecayFactor
	if factor <= 0 || factor >= 1 {
		factor = 0.97
	}
	idle := h.IdleAfter
	if idle <= 0 {
		idle = 7 * 24 * time.Hour
	}
	if _, _, err := h.Discovery.Decay(jc.Ctx, factor, idle); err != nil {
		return err
	}
	return h.Registry.Rebuild(dbctx.Context{Ctx: jc.Ctx})
}

// WikiCrawlHandler walks the configured wiki source and ingests changed
// pages.
type WikiCrawlHandler struct {
	Crawler *ingest.Crawler
}

func (h *WikiCrawlHandler) Type() string { return domain.JobTypeWikiCrawl }

func (h *WikiCrawlHandler) Run(jc *Context) error {
	stats, err := h.Crawler.Crawl(jc.Ctx)
	if err != nil {
		return err
	}
	jc.Log.Info("Wiki crawl finished",
		"pages", stats.Pages, "ingested", stats.Ingested,
		"unchanged", stats.Unchanged, "failed", stats.Failed)
	return nil
}
