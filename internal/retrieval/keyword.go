package retrieval

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docsense/docsense-backend/internal/normalization"
)

// ChunkMeta is the per-chunk metadata the keyword index carries so that
// keyword-only hits can be turned into full retrieval results without a
// round trip to the vector index.
type ChunkMeta struct {
	ChunkID      uuid.UUID
	DocumentID   uuid.UUID
	Title        string
	URL          string
	SourceKind   string
	LastModified time.Time
	Text         string
	AliasTags    []string
}

// KeywordHit is one scored lexical match. Score is BM25 normalized to [0,1]
// within the result set.
type KeywordHit struct {
	Meta  ChunkMeta
	Score float64
}

type indexedChunk struct {
	meta   ChunkMeta
	counts map[string]int
	length int
}

// KeywordIndex is an in-process BM25 inverted index over chunk text. It is a
// pure cache rebuilt from the chunk table; the vector index stays the source
// of truth for retrieval payloads.
type KeywordIndex struct {
	mu       sync.RWMutex
	chunks   map[uuid.UUID]*indexedChunk
	postings map[string]map[uuid.UUID]struct{}
	totalLen int
}

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

func NewKeywordIndex() *KeywordIndex {
	return &KeywordIndex{
		chunks:   map[uuid.UUID]*indexedChunk{},
		postings: map[string]map[uuid.UUID]struct{}{},
	}
}

// Put indexes or reindexes one chunk.
func (ix *KeywordIndex) Put(meta ChunkMeta) {
	toks := normalization.ContentTokens(meta.Text + " " + meta.Title)
	counts := map[string]int{}
	for _, t := range toks {
		counts[t]++
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(meta.ChunkID)
	ic := &indexedChunk{meta: meta, counts: counts, length: len(toks)}
	ix.chunks[meta.ChunkID] = ic
	ix.totalLen += ic.length
	for t := range counts {
		m, ok := ix.postings[t]
		if !ok {
			m = map[uuid.UUID]struct{}{}
			ix.postings[t] = m
		}
		m[meta.ChunkID] = struct{}{}
	}
}

// RemoveDocument drops every chunk of the given document from the index.
func (ix *KeywordIndex) RemoveDocument(documentID uuid.UUID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for id, ic := range ix.chunks {
		if ic.meta.DocumentID == documentID {
			ix.removeLocked(id)
		}
	}
}

func (ix *KeywordIndex) removeLocked(chunkID uuid.UUID) {
	ic, ok := ix.chunks[chunkID]
	if !ok {
		return
	}
	ix.totalLen -= ic.length
	delete(ix.chunks, chunkID)
	for t := range ic.counts {
		if m, ok := ix.postings[t]; ok {
			delete(m, chunkID)
			if len(m) == 0 {
				delete(ix.postings, t)
			}
		}
	}
}

func (ix *KeywordIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.chunks)
}

// Search scores the union of content tokens across the expanded query set
// and returns the top k hits, BM25 normalized so the best hit scores 1.0.
// Ties break on chunk ID for deterministic output.
func (ix *KeywordIndex) Search(queries []string, k int) []KeywordHit {
	if k <= 0 {
		k = 25
	}

	termSet := map[string]struct{}{}
	for _, q := range queries {
		for _, t := range normalization.ContentTokens(q) {
			termSet[t] = struct{}{}
		}
	}
	if len(termSet) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := len(ix.chunks)
	if n == 0 {
		return nil
	}
	avgLen := float64(ix.totalLen) / float64(n)
	if avgLen <= 0 {
		avgLen = 1
	}

	raw := map[uuid.UUID]float64{}
	for term := range termSet {
		posting, ok := ix.postings[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(len(posting))+0.5)/(float64(len(posting))+0.5))
		for id := range posting {
			ic := ix.chunks[id]
			tf := float64(ic.counts[term])
			denom := tf + bm25K1*(1-bm25B+bm25B*float64(ic.length)/avgLen)
			raw[id] += idf * tf * (bm25K1 + 1) / denom
		}
	}
	if len(raw) == 0 {
		return nil
	}

	maxScore := 0.0
	for _, s := range raw {
		if s > maxScore {
			maxScore = s
		}
	}

	out := make([]KeywordHit, 0, len(raw))
	for id, s := range raw {
		out = append(out, KeywordHit{Meta: ix.chunks[id].meta, Score: s / maxScore})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Meta.ChunkID.String() < out[j].Meta.ChunkID.String()
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
