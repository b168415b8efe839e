package obligation

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"obligation-service/internal/access"
	"obligation-service/internal/analysis"
	"obligation-service/internal/apperr"
	"obligation-service/internal/audit"
	"obligation-service/internal/model"
	"obligation-service/internal/reqctx"
	"obligation-service/internal/tenantdb"
	"obligation-service/pkg/logger"
	"obligation-service/prometheus"
)

// Submit hands the obligation to the reviewer. Only the owning party may
// submit.
func (s *Service) Submit(ctx context.Context, id string) (*model.Obligation, error) {
	return s.Apply(ctx, Submit, id)
}

// Approve accepts a submitted obligation.
func (s *Service) Approve(ctx context.Context, id string) (*model.Obligation, error) {
	return s.Apply(ctx, Approve, id)
}

// RequestChanges sends a submitted obligation back to its party.
func (s *Service) RequestChanges(ctx context.Context, id string) (*model.Obligation, error) {
	return s.Apply(ctx, RequestChanges, id)
}

// Reset returns an obligation awaiting changes to PENDING.
func (s *Service) Reset(ctx context.Context, id string) (*model.Obligation, error) {
	return s.Apply(ctx, Reset, id)
}

// Apply performs transition t on obligation id as one conditional update.
// When no row matches, the obligation is either missing, owned by another
// party, or in a status t cannot leave; nothing is retried.
func (s *Service) Apply(ctx context.Context, t Transition, id string) (_ *model.Obligation, err error) {
	ctx, end := s.span(ctx, string(t), id)
	defer func() {
		prometheus.RecordTransition(string(t), err)
		end(err)
	}()

	r, ok := t.rule()
	if !ok {
		return nil, apperr.Validation("unknown transition " + string(t))
	}
	who, err := access.Authorize(ctx, r.op)
	if err != nil {
		return nil, err
	}

	var o model.Obligation
	err = s.store.Tx(ctx, func(tx *gorm.DB) error {
		q := tx.Model(&model.Obligation{}).Where("id = ? AND status IN ?", id, r.from)
		if !who.Privileged() {
			q = q.Where("party_id = ?", who.PartyID)
		}
		res := q.Updates(map[string]interface{}{
			"status":     r.target,
			"updated_at": s.now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return rejected(tx, who, t, id)
		}

		if err := s.recorder.Record(ctx, tx, audit.Entry{
			EntityType: model.EntityObligation,
			EntityID:   id,
			Action:     model.ActionStatusChanged,
			Metadata: map[string]interface{}{
				"to":         r.target,
				"transition": t,
			},
		}); err != nil {
			return err
		}

		current, err := tenantdb.Get[model.Obligation](tx.Preload("Party"), id)
		if err != nil {
			return err
		}
		o = *current
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Obligation status changed",
		zap.String("obligation_id", id),
		zap.String("transition", string(t)),
		zap.String("status", string(o.Status)))

	if r.target == model.StatusSubmitted {
		s.analysis.Enqueue(ctx, analysis.MethodSuggestActions, analysisRequest(who, &o))
	}

	out := o.Project(s.now())
	return &out, nil
}

// rejected explains a transition that matched no row.
func rejected(tx *gorm.DB, who reqctx.Identity, t Transition, id string) error {
	o, err := loadOwned(tx, who, id)
	if err != nil {
		return err
	}
	return apperr.New(apperr.CodeInvalidTransition,
		fmt.Sprintf("cannot %s an obligation in status %s", t, o.Status))
}
