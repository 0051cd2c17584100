package ingest

import (
	"context"
	"time"

	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

// PageRef identifies one wiki page cheaply, without its content.
type PageRef struct {
	Path         string
	URL          string
	LastModified time.Time
}

// Page is a fetched wiki page ready for ingest.
type Page struct {
	Ref     PageRef
	Title   string
	Content string
	IsHTML  bool
	Tags    []string
}

// WikiSource abstracts the wiki backend the crawler walks.
type WikiSource interface {
	ListPages(ctx context.Context) ([]PageRef, error)
	FetchPage(ctx context.Context, ref PageRef) (*Page, error)
}

// CrawlStats summarizes one crawl pass.
type CrawlStats struct {
	Pages     int
	Ingested  int
	Unchanged int
	Failed    int
}

// Crawler walks a wiki source and ingests changed pages. Page failures are
// counted and logged, never fatal for the pass.
type Crawler struct {
	log      *logger.Logger
	source   WikiSource
	ingestor *Ingestor
}

func NewCrawler(log *logger.Logger, source WikiSource, ingestor *Ingestor) *Crawler {
	return &Crawler{
		log:      log.With("service", "WikiCrawler"),
		source:   source,
		ingestor: ingestor,
	}
}

func (c *Crawler) Crawl(ctx context.Context) (*CrawlStats, error) {
	refs, err := c.source.ListPages(ctx)
	if err != nil {
		return nil, err
	}

	stats := &CrawlStats{Pages: len(refs)}
	for _, ref := range refs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		page, err := c.source.FetchPage(ctx, ref)
		if err != nil {
			stats.Failed++
			c.log.Warn("Page fetch failed", "path", ref.Path, "error", err.Error())
			continue
		}
		res, err := c.ingestor.Ingest(ctx, Input{
			SourceURL:     page.Ref.URL,
			SourceKind:    domain.SourceKindWiki,
			Title:         page.Title,
			Content:       page.Content,
			ContentIsHTML: page.IsHTML,
			Tags:          page.Tags,
			LastModified:  page.Ref.LastModified,
		})
		if err != nil {
			stats.Failed++
			c.log.Warn("Page ingest failed", "path", ref.Path, "error", err.Error())
			continue
		}
		if res.Unchanged {
			stats.Unchanged++
		} else {
			stats.Ingested++
		}
	}

	c.log.Info("Crawl pass complete",
		"pages", stats.Pages, "ingested", stats.Ingested,
		"unchanged", stats.Unchanged, "failed", stats.Failed)
	return stats, nil
}
