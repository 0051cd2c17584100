package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RetrievalModeNormal      = "normal"
	RetrievalModeKeywordOnly = "keyword_only"
	RetrievalModeEmpty       = "empty"
	RetrievalModeSkipped     = "skipped"
)

// RetrievalResult is an ephemeral ranked candidate. CombinedScore is a pure
// function of the component scores; output ordering is CombinedScore desc
// with ties broken by ChunkID ascending.
type RetrievalResult struct {
	DocumentID uuid.UUID
	ChunkID    uuid.UUID

	ScoreVector     float64
	ScoreKeyword    float64
	ScoreAliasBoost float64
	Authority       float64
	Freshness       float64
	CombinedScore   float64

	Title        string
	URL          string
	SourceKind   string
	LastModified time.Time
	Excerpt      string
	AliasTags    []string
}

// RetrievalSet is the engine output for one query.
type RetrievalSet struct {
	Results    []RetrievalResult
	Mode       string
	Expansions []string
	FloorUsed  float64
}

// CombineScores computes the deterministic weighted ranking scalar.
func CombineScores(vector, keyword, authority, freshness, aliasBoost float64) float64 {
	return 0.50*vector + 0.20*keyword + 0.15*authority + 0.10*freshness + 0.05*aliasBoost
}

// FreshnessScore decays linearly over 180 days and clamps to [0.2, 1.0].
func FreshnessScore(lastModified, now time.Time) float64 {
	days := now.Sub(lastModified).Hours() / 24
	if days < 0 {
		days = 0
	}
	f := 1.0 - days/180.0
	if f < 0.2 {
		return 0.2
	}
	if f > 1.0 {
		return 1.0
	}
	return f
}
