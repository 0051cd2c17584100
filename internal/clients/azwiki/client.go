package azwiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/docsense/docsense-backend/internal/ingest"
	"github.com/docsense/docsense-backend/internal/pkg/httpx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

const apiVersion = "7.1"

// Client reads an Azure DevOps project wiki as an ingest.WikiSource.
// Pages come back as Markdown.
type Client struct {
	log     *logger.Logger
	baseURL string
	wiki    string
	pat     string
	http    *http.Client

	maxRetries int
}

// NewClient builds a wiki client from environment configuration:
// AZWIKI_ORG_URL (https://dev.azure.com/org/project), AZWIKI_WIKI,
// AZWIKI_PAT.
func NewClient(log *logger.Logger) (*Client, error) {
	orgURL := strings.TrimRight(strings.TrimSpace(os.Getenv("AZWIKI_ORG_URL")), "/")
	if orgURL == "" {
		return nil, fmt.Errorf("missing AZWIKI_ORG_URL")
	}
	wiki := strings.TrimSpace(os.Getenv("AZWIKI_WIKI"))
	if wiki == "" {
		return nil, fmt.Errorf("missing AZWIKI_WIKI")
	}
	pat := strings.TrimSpace(os.Getenv("AZWIKI_PAT"))
	if pat == "" {
		return nil, fmt.Errorf("missing AZWIKI_PAT")
	}
	return &Client{
		log:        log.With("service", "AzureWikiClient"),
		baseURL:    orgURL,
		wiki:       wiki,
		pat:        pat,
		http:       &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
	}, nil
}

type pageNode struct {
	Path      string     `json:"path"`
	RemoteURL string     `json:"remoteUrl"`
	IsParent  bool       `json:"isParentPage"`
	SubPages  []pageNode `json:"subPages"`
}

type pageResponse struct {
	Path      string `json:"path"`
	RemoteURL string `json:"remoteUrl"`
	Content   string `json:"content"`
}

// ListPages walks the full wiki page tree.
func (c *Client) ListPages(ctx context.Context) ([]ingest.PageRef, error) {
	endpoint := fmt.Sprintf("%s/_apis/wiki/wikis/%s/pages?path=/&recursionLevel=full&api-version=%s",
		c.baseURL, url.PathEscape(c.wiki), apiVersion)

	var root pageNode
	if err := c.get(ctx, endpoint, &root); err != nil {
		return nil, err
	}

	var refs []ingest.PageRef
	var walk func(n pageNode)
	walk = func(n pageNode) {
		if n.Path != "" && !n.IsParent {
			refs = append(refs, ingest.PageRef{Path: n.Path, URL: n.RemoteURL})
		}
		for _, sub := range n.SubPages {
			walk(sub)
		}
	}
	walk(root)
	return refs, nil
}

// FetchPage retrieves one page with content. The API does not expose a
// reliable modified timestamp on this endpoint, so crawl time stands in and
// the ingest hash compare decides whether anything changed.
func (c *Client) FetchPage(ctx context.Context, ref ingest.PageRef) (*ingest.Page, error) {
	endpoint := fmt.Sprintf("%s/_apis/wiki/wikis/%s/pages?path=%s&includeContent=true&api-version=%s",
		c.baseURL, url.PathEscape(c.wiki), url.QueryEscape(ref.Path), apiVersion)

	var resp pageResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	pageURL := resp.RemoteURL
	if pageURL == "" {
		pageURL = ref.URL
	}
	if ref.LastModified.IsZero() {
		ref.LastModified = time.Now().UTC()
	}
	ref.URL = pageURL

	return &ingest.Page{
		Ref:     ref,
		Title:   titleFromPath(resp.Path),
		Content: resp.Content,
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	backoff := 500 * time.Millisecond
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.SetBasicAuth("", c.pat)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err == nil {
			raw, readErr := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if readErr == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return json.Unmarshal(raw, out)
			}
			if readErr == nil && !httpx.IsRetryableHTTPStatus(resp.StatusCode) {
				return fmt.Errorf("azure wiki http %d: %s", resp.StatusCode, string(raw))
			}
			err = fmt.Errorf("azure wiki http %d", resp.StatusCode)
		}

		if attempt >= c.maxRetries {
			return err
		}
		sleep := httpx.JitterSleep(backoff)
		c.log.Warn("Azure wiki request retrying",
			"attempt", attempt+1, "sleep", sleep.String(), "error", err.Error())
		time.Sleep(sleep)
		backoff *= 2
	}
}

func titleFromPath(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "Wiki Home"
	}
	parts := strings.Split(path, "/")
	title := parts[len(parts)-1]
	return strings.ReplaceAll(title, "-", " ")
}
