package audit

import (
	"context"

	"go.uber.org/zap"

	"obligation-service/internal/access"
	"obligation-service/internal/apperr"
	"obligation-service/internal/model"
	"obligation-service/internal/tenantdb"
	"obligation-service/pkg/logger"
)

// Service exposes the activity log to callers.
type Service struct {
	store    *tenantdb.Store
	recorder *Recorder
}

// NewService creates the activity read service.
func NewService(store *tenantdb.Store, recorder *Recorder) *Service {
	return &Service{store: store, recorder: recorder}
}

// ListActivity returns activity of the caller's tenant. Restricted actors
// may only read the history of one obligation owned by their party.
func (s *Service) ListActivity(ctx context.Context, f Filter) ([]model.ActivityLogEntry, error) {
	id, err := access.Authorize(ctx, access.ReadActivity)
	if err != nil {
		return nil, err
	}
	if f.EntityType != "" && !f.EntityType.Valid() {
		return nil, apperr.Validation("unknown entity type " + string(f.EntityType))
	}

	if !id.Privileged() {
		if f.EntityType != model.EntityObligation || f.EntityID == "" {
			return nil, apperr.New(apperr.CodeForbidden, "restricted actors may only read obligation history")
		}
		o, err := tenantdb.Get[model.Obligation](s.store.Conn(ctx).Select("id", "party_id"), f.EntityID)
		if err != nil {
			return nil, err
		}
		if err := access.CheckParty(id, o.PartyID); err != nil {
			return nil, err
		}
	}

	entries, err := s.recorder.List(ctx, f)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("Activity retrieved", zap.Int("count", len(entries)))
	return entries, nil
}
