package tenantdb

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"obligation-service/internal/apperr"
	"obligation-service/internal/reqctx"
	"obligation-service/prometheus"
)

// Store is the tenant-scoped data store shared by the repositories.
type Store struct {
	db *gorm.DB
}

// New installs the tenant guard for models on db and wraps it.
func New(db *gorm.DB, models ...interface{}) (*Store, error) {
	if err := db.Use(NewPlugin(models...)); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Conn returns a session bound to ctx. Tenant-owned statements on it use
// the tenant scope carried by ctx.
func (s *Store) Conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// WithTenant runs fn with ctx scoped to tenantID.
func (s *Store) WithTenant(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	if tenantID == "" {
		return apperr.ErrScopeRequired
	}
	return fn(reqctx.WithTenant(ctx, tenantID))
}

// Tx runs fn inside one transaction bound to ctx. The transaction is rolled
// back when fn returns an error.
func (s *Store) Tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	defer prometheus.TrackDBOperation("transaction")(time.Now())
	return Translate(s.Conn(ctx).Transaction(fn))
}

// Translate maps gorm errors onto the domain taxonomy. Domain errors pass
// through unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.Wrap(apperr.CodeNotFound, "not found", err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(apperr.CodeConflict, "already exists", err)
	default:
		return apperr.Wrap(apperr.CodeStorageFailure, "storage failure", err)
	}
}

// NotFoundAs renames a not-found error after entity and passes other errors
// through.
func NotFoundAs(err error, entity string) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.NotFound(entity)
	}
	return err
}

// Get loads the row of T with the given id.
func Get[T any](db *gorm.DB, id string) (*T, error) {
	var out T
	if err := db.Where("id = ?", id).Take(&out).Error; err != nil {
		return nil, Translate(err)
	}
	return &out, nil
}

// First loads the first row of T matching the conditions.
func First[T any](db *gorm.DB, query interface{}, args ...interface{}) (*T, error) {
	var out T
	if err := db.Where(query, args...).Take(&out).Error; err != nil {
		return nil, Translate(err)
	}
	return &out, nil
}

// Create inserts v.
func Create[T any](db *gorm.DB, v *T) error {
	return Translate(db.Create(v).Error)
}

// Update applies changes to the row of T with the given id and reports
// NotFound when no row matched.
func Update[T any](db *gorm.DB, id string, changes map[string]interface{}) error {
	var zero T
	res := db.Model(&zero).Where("id = ?", id).Updates(changes)
	if res.Error != nil {
		return Translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// Exists reports whether a row of T with the given id is visible.
func Exists[T any](db *gorm.DB, id string) (bool, error) {
	var (
		zero  T
		count int64
	)
	if err := db.Model(&zero).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, Translate(err)
	}
	return count > 0, nil
}
