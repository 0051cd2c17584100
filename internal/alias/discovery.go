package alias

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/docsense/docsense-backend/internal/data/repos"
	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

const (
	reinforcementBoost = 0.10
	softDeleteFloor    = 0.10
)

// Discovery runs the detector suite over the document corpus and reconciles
// the results into the alias_edge table: new pairs are created at the
// detector's base confidence, re-observed pairs are reinforced.
type Discovery struct {
	log   *logger.Logger
	db    *gorm.DB
	docs  repos.DocumentRepo
	edges repos.AliasEdgeRepo
}

func NewDiscovery(db *gorm.DB, log *logger.Logger, docs repos.DocumentRepo, edges repos.AliasEdgeRepo) *Discovery {
	return &Discovery{
		log:   log.With("service", "AliasDiscovery"),
		db:    db,
		docs:  docs,
		edges: edges,
	}
}

// RunFullPass walks every document and applies all detected candidates.
// Running it twice over an unchanged corpus yields the same edge set, up to
// reinforcement counters and last_seen.
func (d *Discovery) RunFullPass(ctx context.Context) (created, reinforced int, err error) {
	dbc := dbctx.Context{Ctx: ctx}
	var after *uuid.UUID
	for {
		page, err := d.docs.ListPage(dbc, after, 200)
		if err != nil {
			return created, reinforced, err
		}
		if len(page) == 0 {
			break
		}
		for _, doc := range page {
			c, r, err := d.Apply(ctx, DetectDocument(doc))
			if err != nil {
				return created, reinforced, err
			}
			created += c
			reinforced += r
		}
		last := page[len(page)-1].ID
		after = &last
		if ctx.Err() != nil {
			return created, reinforced, ctx.Err()
		}
	}
	d.log.Info("Alias discovery pass complete", "created", created, "reinforced", reinforced)
	return created, reinforced, nil
}

// Apply upserts one candidate batch: existing edges get the reinforcement
// bump (capped at 1.0), new edges start at the detector base confidence.
func (d *Discovery) Apply(ctx context.Context, candidates []Candidate) (created, reinforced int, err error) {
	dbc := dbctx.Context{Ctx: ctx}
	now := time.Now().UTC()
	for _, c := range candidates {
		existing, err := d.edges.GetByPair(dbc, c.TermA, c.TermB)
		if err != nil {
			return created, reinforced, err
		}
		if existing == nil {
			edge := &domain.AliasEdge{
				TermA:          c.TermA,
				TermB:          c.TermB,
				Kind:           c.Kind,
				Confidence:     clamp01(c.Confidence),
				FirstSeen:      now,
				LastSeen:       now,
				ProvenanceDocs: provenanceJSON(nil, c.DocID),
			}
			if err := d.edges.Create(dbc, edge); err != nil {
				return created, reinforced, err
			}
			created++
			continue
		}

		conf := clamp01(existing.Confidence + reinforcementBoost)
		updates := map[string]interface{}{
			"confidence":      conf,
			"reinforcements":  gorm.Expr("reinforcements + 1"),
			"last_seen":       now,
			"deleted_at":      nil,
			"provenance_docs": provenanceJSON(existing.ProvenanceDocs, c.DocID),
		}
		if err := d.edges.UpdateFields(dbc, c.TermA, c.TermB, updates); err != nil {
			return created, reinforced, err
		}
		reinforced++
	}
	return created, reinforced, nil
}

// LearnConversational applies alias pairs surfaced by the intent analyzer.
// Best effort off the request path; failures only log.
func (d *Discovery) LearnConversational(ctx context.Context, pairs []domain.AliasCandidate) {
	candidates := ConversationalCandidates(pairs)
	if len(candidates) == 0 {
		return
	}
	if _, _, err := d.Apply(ctx, candidates); err != nil {
		d.log.Warn("Conversational alias learning failed", "error", err.Error())
	}
}

// Decay applies the idle-edge confidence decay and soft-deletes edges that
// fell below the audit floor. A full cycle never produces negative values
// because the factor is multiplicative in (0,1).
func (d *Discovery) Decay(ctx context.Context, factor float64, idleAfter time.Duration) (decayed, deleted int64, err error) {
	dbc := dbctx.Context{Ctx: ctx}
	decayed, err = d.edges.DecayIdle(dbc, factor, time.Now().UTC().Add(-idleAfter))
	if err != nil {
		return 0, 0, err
	}
	deleted, err = d.edges.SoftDeleteBelow(dbc, softDeleteFloor)
	if err != nil {
		return decayed, 0, err
	}
	d.log.Info("Alias decay pass complete", "decayed", decayed, "soft_deleted", deleted)
	return decayed, deleted, nil
}

func provenanceJSON(existing datatypes.JSON, docID uuid.UUID) datatypes.JSON {
	var ids []string
	if len(existing) > 0 {
		_ = json.Unmarshal(existing, &ids)
	}
	if docID != uuid.Nil {
		s := docID.String()
		found := false
		for _, id := range ids {
			if id == s {
				found = true
				break
			}
		}
		if !found {
			ids = append(ids, s)
		}
	}
	if ids == nil {
		ids = []string{}
	}
	raw, _ := json.Marshal(ids)
	return datatypes.JSON(raw)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
