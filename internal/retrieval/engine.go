package retrieval

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/normalization"
	"github.com/docsense/docsense-backend/internal/pkg/apperr"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
	"github.com/docsense/docsense-backend/internal/platform/qdrant"
)

// Embedder is the slice of the LLM client the engine needs.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// VectorSearcher is the slice of the vector store the engine needs.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, k int, filter map[string]any) ([]qdrant.Match, error)
}

// Expander produces alias-driven query expansions.
type Expander interface {
	Expand(query string) []string
}

type Config struct {
	K               int           // per-query candidates from each leg
	Cap             int           // final result cap
	PrecisionFloors []float64     // staged combined-score floors
	MinVectorScore  float64       // hard vector-score gate in normal mode
	Timeout         time.Duration // whole-call budget before keyword fallback
	MaxQueries      int           // expanded query set cap
}

func DefaultConfig() Config {
	return Config{
		K:               25,
		Cap:             10,
		PrecisionFloors: []float64{0.75, 0.50, 0.30},
		MinVectorScore:  0.20,
		Timeout:         10 * time.Second,
		MaxQueries:      8,
	}
}

// EmbedCache memoizes query embeddings by exact string. Process-wide, safe
// for concurrent use.
type EmbedCache struct {
	mu  sync.Mutex
	m   map[string][]float32
	max int
}

func NewEmbedCache(max int) *EmbedCache {
	if max <= 0 {
		max = 2048
	}
	return &EmbedCache{m: map[string][]float32{}, max: max}
}

func (c *EmbedCache) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *EmbedCache) put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.m) >= c.max {
		// Full reset beats LRU bookkeeping at this size.
		c.m = map[string][]float32{}
	}
	c.m[key] = vec
}

// Engine implements hybrid retrieval: alias-expanded query set, dense search
// per query, BM25 keyword leg, deterministic merge and rerank.
type Engine struct {
	log     *logger.Logger
	cfg     Config
	embed   Embedder
	vec     VectorSearcher
	keyword *KeywordIndex
	aliases Expander
	cache   *EmbedCache

	// Now is swappable for deterministic freshness scoring in tests.
	Now func() time.Time
}

func NewEngine(log *logger.Logger, cfg Config, embed Embedder, vec VectorSearcher, keyword *KeywordIndex, aliases Expander, cache *EmbedCache) *Engine {
	if cfg.K <= 0 {
		cfg = DefaultConfig()
	}
	if cache == nil {
		cache = NewEmbedCache(0)
	}
	return &Engine{
		log:     log.With("service", "RetrievalEngine"),
		cfg:     cfg,
		embed:   embed,
		vec:     vec,
		keyword: keyword,
		aliases: aliases,
		cache:   cache,
		Now:     time.Now,
	}
}

type candidate struct {
	meta ChunkMeta
	vec  float64
	kw   float64
}

// Retrieve runs the full pipeline for one query. The returned set is sorted
// by combined score descending with stable chunk-ID tie-break.
func (e *Engine) Retrieve(ctx context.Context, query string, plan *domain.IntentPlan) (*domain.RetrievalSet, error) {
	query = strings.TrimSpace(query)
	set := &domain.RetrievalSet{Mode: domain.RetrievalModeNormal}
	if query == "" {
		set.Mode = domain.RetrievalModeEmpty
		return set, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	var expansions []string
	if e.aliases != nil {
		expansions = e.aliases.Expand(query)
	}
	set.Expansions = expansions

	queries := expandedQuerySet(query, expansions, plan, e.cfg.MaxQueries)

	candidates := map[uuid.UUID]*candidate{}

	// Dense leg. Embedding failure or a timed-out index degrade to
	// keyword-only; a hard index failure fails the call.
	denseErr := e.denseLeg(ctx, queries, candidates)
	if denseErr != nil {
		var opErr *qdrant.OperationError
		hardIndexFailure := errors.As(denseErr, &opErr) &&
			opErr.Code != qdrant.OperationErrorTimeout &&
			!errors.Is(denseErr, context.DeadlineExceeded)
		if hardIndexFailure {
			return nil, apperr.Wrap(apperr.CodeRetrievalUnavailable, "vector index unreachable", denseErr)
		}
		e.log.Warn("Dense retrieval degraded, falling back to keyword-only", "error", denseErr)
		set.Mode = domain.RetrievalModeKeywordOnly
		for id := range candidates {
			delete(candidates, id)
		}
	}

	// Keyword leg.
	if e.keyword != nil {
		for _, hit := range e.keyword.Search(queries, e.cfg.K) {
			c, ok := candidates[hit.Meta.ChunkID]
			if !ok {
				c = &candidate{meta: hit.Meta}
				candidates[hit.Meta.ChunkID] = c
			}
			if hit.Score > c.kw {
				c.kw = hit.Score
			}
		}
	}

	texts := make(map[uuid.UUID]string, len(candidates))
	for id, c := range candidates {
		texts[id] = c.meta.Text
	}

	results := e.score(candidates, expansions, set.Mode)
	results = dedupe(results, texts)
	results, set.FloorUsed = applyPrecisionFloors(results, e.cfg.PrecisionFloors)
	if len(results) > e.cfg.Cap {
		results = results[:e.cfg.Cap]
	}
	if len(results) == 0 && set.Mode == domain.RetrievalModeNormal {
		set.Mode = domain.RetrievalModeEmpty
	}
	set.Results = results
	return set, nil
}

func expandedQuerySet(query string, expansions []string, plan *domain.IntentPlan, cap int) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" {
			return
		}
		key := strings.ToLower(q)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	add(query)
	for _, x := range expansions {
		add(x)
	}
	if plan != nil {
		for _, f := range plan.SearchFocus {
			add(f)
		}
	}
	if len(out) > cap {
		out = out[:cap]
	}
	return out
}

func (e *Engine) denseLeg(ctx context.Context, queries []string, candidates map[uuid.UUID]*candidate) error {
	if e.embed == nil || e.vec == nil {
		return errors.New("dense retrieval not configured")
	}

	// Embed uncached queries in one batch, preserving order.
	var missing []string
	for _, q := range queries {
		if _, ok := e.cache.get(q); !ok {
			missing = append(missing, q)
		}
	}
	if len(missing) > 0 {
		vecs, err := e.embed.Embed(ctx, missing)
		if err != nil {
			return err
		}
		for i, q := range missing {
			if i < len(vecs) {
				e.cache.put(q, vecs[i])
			}
		}
	}

	for _, q := range queries {
		vec, ok := e.cache.get(q)
		if !ok || len(vec) == 0 {
			continue
		}
		matches, err := e.vec.Search(ctx, vec, e.cfg.K, nil)
		if err != nil {
			return err
		}
		for _, m := range matches {
			meta, ok := matchMeta(m)
			if !ok {
				continue
			}
			c, exists := candidates[meta.ChunkID]
			if !exists {
				c = &candidate{meta: meta}
				candidates[meta.ChunkID] = c
			}
			if m.Score > c.vec {
				c.vec = m.Score
			}
		}
	}
	return nil
}

func (e *Engine) score(candidates map[uuid.UUID]*candidate, expansions []string, mode string) []domain.RetrievalResult {
	now := e.Now().UTC()
	expSet := map[string]struct{}{}
	for _, x := range expansions {
		expSet[strings.ToLower(x)] = struct{}{}
	}

	out := make([]domain.RetrievalResult, 0, len(candidates))
	for _, c := range candidates {
		if mode == domain.RetrievalModeNormal && c.vec < e.cfg.MinVectorScore {
			continue
		}
		boost := 0.0
		for _, tag := range c.meta.AliasTags {
			if _, ok := expSet[strings.ToLower(tag)]; ok {
				boost = 0.05
				break
			}
		}
		authority := domain.Authority(c.meta.SourceKind)
		freshness := domain.FreshnessScore(c.meta.LastModified, now)
		out = append(out, domain.RetrievalResult{
			DocumentID:      c.meta.DocumentID,
			ChunkID:         c.meta.ChunkID,
			ScoreVector:     c.vec,
			ScoreKeyword:    c.kw,
			ScoreAliasBoost: boost,
			Authority:       authority,
			Freshness:       freshness,
			CombinedScore:   domain.CombineScores(c.vec, c.kw, authority, freshness, boost),
			Title:           c.meta.Title,
			URL:             c.meta.URL,
			SourceKind:      c.meta.SourceKind,
			LastModified:    c.meta.LastModified,
			Excerpt:         excerpt(c.meta.Text, 300),
			AliasTags:       c.meta.AliasTags,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CombinedScore != out[j].CombinedScore {
			return out[i].CombinedScore > out[j].CombinedScore
		}
		return out[i].ChunkID.String() < out[j].ChunkID.String()
	})
	return out
}

// dedupe enforces at most two chunks per document and drops near-duplicate
// text (shingled Jaccard at or above 0.85 against a higher-ranked keeper).
// Similarity runs over the full chunk text; excerpts are display-capped and
// long chunks sharing only an excerpt-length prefix are distinct.
func dedupe(in []domain.RetrievalResult, texts map[uuid.UUID]string) []domain.RetrievalResult {
	perDoc := map[uuid.UUID]int{}
	var kept []domain.RetrievalResult
	var keptShingles []map[string]struct{}
	for _, r := range in {
		if perDoc[r.DocumentID] >= 2 {
			continue
		}
		text := texts[r.ChunkID]
		if text == "" {
			text = r.Excerpt
		}
		sh := shingleSet(text, 3)
		dup := false
		for _, prev := range keptShingles {
			if jaccard(sh, prev) >= 0.85 {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		perDoc[r.DocumentID]++
		kept = append(kept, r)
		keptShingles = append(keptShingles, sh)
	}
	return kept
}

func applyPrecisionFloors(in []domain.RetrievalResult, floors []float64) ([]domain.RetrievalResult, float64) {
	if len(floors) == 0 {
		return in, 0
	}
	for _, floor := range floors {
		var out []domain.RetrievalResult
		for _, r := range in {
			if r.CombinedScore >= floor {
				out = append(out, r)
			}
		}
		if len(out) >= 3 {
			return out, floor
		}
		// Fewer than 3 at the lowest floor still counts as the final stage.
		if floor == floors[len(floors)-1] {
			return out, floor
		}
	}
	return nil, floors[len(floors)-1]
}

func matchMeta(m qdrant.Match) (ChunkMeta, bool) {
	id, err := uuid.Parse(strings.TrimSpace(m.ID))
	if err != nil || id == uuid.Nil {
		return ChunkMeta{}, false
	}
	p := m.Payload
	docID, err := uuid.Parse(payloadString(p, "document_id"))
	if err != nil || docID == uuid.Nil {
		return ChunkMeta{}, false
	}
	meta := ChunkMeta{
		ChunkID:    id,
		DocumentID: docID,
		Title:      payloadString(p, "title"),
		URL:        payloadString(p, "source_url"),
		SourceKind: payloadString(p, "source_kind"),
		Text:       payloadString(p, "text"),
		AliasTags:  payloadStrings(p, "alias_tags"),
	}
	if ts := payloadString(p, "last_modified"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			meta.LastModified = parsed
		}
	}
	return meta, true
}

func payloadString(p map[string]any, key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return strings.TrimSpace(s)
}

func payloadStrings(p map[string]any, key string) []string {
	if p == nil {
		return nil
	}
	raw, ok := p[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func excerpt(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	cut := text[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > max/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}

func shingleSet(text string, n int) map[string]struct{} {
	toks := normalization.Tokenize(text)
	out := map[string]struct{}{}
	if len(toks) < n {
		if len(toks) > 0 {
			out[strings.Join(toks, " ")] = struct{}{}
		}
		return out
	}
	for i := 0; i+n <= len(toks); i++ {
		out[strings.Join(toks[i:i+n], " ")] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
