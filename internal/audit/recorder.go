// Package audit appends and lists the tenant activity log.
package audit

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"obligation-service/internal/apperr"
	"obligation-service/internal/model"
	"obligation-service/internal/reqctx"
	"obligation-service/internal/tenantdb"
	"obligation-service/pkg/logger"
	"obligation-service/prometheus"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Entry describes one state change to record.
type Entry struct {
	EntityType model.EntityType
	EntityID   string
	Action     model.Action
	Metadata   map[string]interface{}
}

// Filter narrows an activity listing.
type Filter struct {
	EntityType model.EntityType
	EntityID   string
	Limit      int
}

// Recorder writes activity entries. It has no update or delete API.
type Recorder struct {
	store        *tenantdb.Store
	defaultLimit int
}

// NewRecorder returns a recorder listing pageSize entries by default.
func NewRecorder(store *tenantdb.Store, pageSize int) *Recorder {
	if pageSize <= 0 || pageSize > MaxLimit {
		pageSize = DefaultLimit
	}
	return &Recorder{store: store, defaultLimit: pageSize}
}

// Record appends e through tx, the transaction of the mutation it describes.
// A failure aborts that transaction.
func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, e Entry) error {
	id, ok := reqctx.IdentityFrom(ctx)
	if !ok {
		return apperr.ErrUnauthorized
	}

	row := &model.ActivityLogEntry{
		ActorID:    id.ActorID,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Action,
	}
	if len(e.Metadata) > 0 {
		row.Metadata = datatypes.JSONMap(e.Metadata)
	}

	if err := tx.Create(row).Error; err != nil {
		prometheus.AuditWriteFailuresCounter.Inc()
		logger.FromContext(ctx).Error("Failed to record activity",
			zap.String("entity_type", string(e.EntityType)),
			zap.String("entity_id", e.EntityID),
			zap.String("action", string(e.Action)),
			zap.Error(err))
		return tenantdb.Translate(err)
	}
	return nil
}

// List returns entries of the caller's tenant, newest first.
func (r *Recorder) List(ctx context.Context, f Filter) ([]model.ActivityLogEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = r.defaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	q := r.store.Conn(ctx).Model(&model.ActivityLogEntry{})
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}

	var entries []model.ActivityLogEntry
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, tenantdb.Translate(err)
	}
	return entries, nil
}
