package repos

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/dbctx"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

type AliasEdgeRepo interface {
	GetByPair(dbc dbctx.Context, termA, termB string) (*domain.AliasEdge, error)
	Create(dbc dbctx.Context, edge *domain.AliasEdge) error
	UpdateFields(dbc dbctx.Context, termA, termB string, updates map[string]interface{}) error
	ListActive(dbc dbctx.Context, minConfidence float64) ([]*domain.AliasEdge, error)
	ListAll(dbc dbctx.Context, limit int) ([]*domain.AliasEdge, error)
	DecayIdle(dbc dbctx.Context, factor float64, idleSince time.Time) (int64, error)
	SoftDeleteBelow(dbc dbctx.Context, floor float64) (int64, error)
}

type aliasEdgeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAliasEdgeRepo(db *gorm.DB, log *logger.Logger) AliasEdgeRepo {
	return &aliasEdgeRepo{db: db, log: log.With("repo", "AliasEdgeRepo")}
}

func (r *aliasEdgeRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *aliasEdgeRepo) GetByPair(dbc dbctx.Context, termA, termB string) (*domain.AliasEdge, error) {
	a, b := domain.CanonicalPair(termA, termB)
	var out domain.AliasEdge
	err := r.tx(dbc).WithContext(dbc.Ctx).
		Unscoped().
		Where("term_a = ? AND term_b = ?", a, b).
		Take(&out).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *aliasEdgeRepo) Create(dbc dbctx.Context, edge *domain.AliasEdge) error {
	if edge == nil {
		return fmt.Errorf("missing edge")
	}
	edge.TermA, edge.TermB = domain.CanonicalPair(edge.TermA, edge.TermB)
	return r.tx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "term_a"}, {Name: "term_b"}},
			DoNothing: true,
		}).
		Create(edge).Error
}

func (r *aliasEdgeRepo) UpdateFields(dbc dbctx.Context, termA, termB string, updates map[string]interface{}) error {
	a, b := domain.CanonicalPair(termA, termB)
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	return r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.AliasEdge{}).
		Unscoped().
		Where("term_a = ? AND term_b = ?", a, b).
		Updates(updates).Error
}

// ListActive returns non-deleted edges at or above the confidence floor,
// ordered for a deterministic read-view rebuild.
func (r *aliasEdgeRepo) ListActive(dbc dbctx.Context, minConfidence float64) ([]*domain.AliasEdge, error) {
	var out []*domain.AliasEdge
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.AliasEdge{}).
		Where("confidence >= ?", minConfidence).
		Order("term_a ASC, term_b ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListAll includes below-expansion-floor edges for the audit endpoint.
func (r *aliasEdgeRepo) ListAll(dbc dbctx.Context, limit int) ([]*domain.AliasEdge, error) {
	if limit <= 0 || limit > 2000 {
		limit = 500
	}
	var out []*domain.AliasEdge
	if err := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.AliasEdge{}).
		Order("confidence DESC, term_a ASC, term_b ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DecayIdle multiplies confidence by factor for edges not reinforced since
// idleSince. Confidence stays in [0,1] because factor is in (0,1).
func (r *aliasEdgeRepo) DecayIdle(dbc dbctx.Context, factor float64, idleSince time.Time) (int64, error) {
	if factor <= 0 || factor >= 1 {
		return 0, fmt.Errorf("decay factor out of range: %v", factor)
	}
	res := r.tx(dbc).WithContext(dbc.Ctx).
		Model(&domain.AliasEdge{}).
		Where("last_seen < ?", idleSince).
		Updates(map[string]interface{}{
			"confidence": gorm.Expr("confidence * ?", factor),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *aliasEdgeRepo) SoftDeleteBelow(dbc dbctx.Context, floor float64) (int64, error) {
	res := r.tx(dbc).WithContext(dbc.Ctx).
		Where("confidence < ?", floor).
		Delete(&domain.AliasEdge{})
	return res.RowsAffected, res.Error
}
