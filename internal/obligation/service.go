// Package obligation implements obligation records, their status lifecycle,
// and the comments and attachments hanging off them.
package obligation

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"obligation-service/internal/access"
	"obligation-service/internal/analysis"
	"obligation-service/internal/apperr"
	"obligation-service/internal/audit"
	"obligation-service/internal/blob"
	"obligation-service/internal/model"
	"obligation-service/internal/reqctx"
	"obligation-service/internal/tenantdb"
	"obligation-service/pkg/logger"
	"obligation-service/pkg/tracing"
	"obligation-service/prometheus"
)

const maxTitleLength = 255

// Service runs obligation operations for the caller in the request context.
type Service struct {
	store    *tenantdb.Store
	recorder *audit.Recorder
	blobs    blob.Store
	analysis analysis.Dispatch
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the clock used for due-date projection and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an obligation service.
func NewService(store *tenantdb.Store, recorder *audit.Recorder, blobs blob.Store, dispatch analysis.Dispatch, opts ...Option) *Service {
	if dispatch == nil {
		dispatch = analysis.Nop{}
	}
	s := &Service{
		store:    store,
		recorder: recorder,
		blobs:    blobs,
		analysis: dispatch,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput holds the fields of a new obligation.
type CreateInput struct {
	PartyID     string
	Title       string
	Category    model.Category
	DueDate     time.Time
	Description string
}

func (in *CreateInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.PartyID == "":
		return apperr.Validation("party_id is required")
	case in.Title == "":
		return apperr.Validation("title is required")
	case len(in.Title) > maxTitleLength:
		return apperr.Validation("title is too long")
	case !in.Category.Valid():
		return apperr.Validation("category must be PAYMENT, DOCUMENT or APPROVAL")
	case in.DueDate.IsZero():
		return apperr.Validation("due_date is required")
	}
	return nil
}

// UpdateInput holds the fields to change; nil fields stay as they are.
// Status is not updatable here.
type UpdateInput struct {
	PartyID     *string
	Title       *string
	Category    *model.Category
	DueDate     *time.Time
	Description *string
}

// ListFilter narrows an obligation listing. Status matches the displayed
// status.
type ListFilter struct {
	Status  model.Status
	PartyID string
	Text    string
}

func (s *Service) span(ctx context.Context, name, obligationID string) (context.Context, func(error)) {
	attrs := []attribute.KeyValue{attribute.String("obligation.id", obligationID)}
	if tenantID, ok := reqctx.TenantFrom(ctx); ok {
		attrs = append(attrs, attribute.String("tenant.id", tenantID))
	}
	ctx, span := tracing.Start(ctx, "obligation."+name, attrs...)
	return ctx, func(err error) { tracing.End(span, err) }
}

// Create adds a PENDING obligation for an existing party of the tenant.
func (s *Service) Create(ctx context.Context, in CreateInput) (_ *model.Obligation, err error) {
	ctx, end := s.span(ctx, "create", "")
	defer func() {
		prometheus.RecordOperation("obligation", "create", err)
		end(err)
	}()

	who, err := access.Authorize(ctx, access.CreateObligation)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	o := &model.Obligation{
		PartyID:     in.PartyID,
		Title:       in.Title,
		Category:    in.Category,
		DueDate:     in.DueDate,
		Status:      model.StatusPending,
		Description: in.Description,
	}
	err = s.store.Tx(ctx, func(tx *gorm.DB) error {
		exists, err := tenantdb.Exists[model.Party](tx, in.PartyID)
		if err != nil {
			return err
		}
		if !exists {
			return apperr.Validation("party does not exist")
		}
		if err := tenantdb.Create(tx, o); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.Entry{
			EntityType: model.EntityObligation,
			EntityID:   o.ID,
			Action:     model.ActionCreated,
			Metadata:   map[string]interface{}{"title": o.Title},
		})
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Obligation created successfully",
		zap.String("obligation_id", o.ID),
		zap.String("party_id", o.PartyID))
	s.analysis.Enqueue(ctx, analysis.MethodAnalyze, analysisRequest(who, o))

	out := o.Project(s.now())
	return &out, nil
}

// Get returns one obligation with its displayed status.
func (s *Service) Get(ctx context.Context, id string) (_ *model.Obligation, err error) {
	ctx, end := s.span(ctx, "get", id)
	defer func() { end(err) }()

	who, err := access.Authorize(ctx, access.ReadObligation)
	if err != nil {
		return nil, err
	}
	o, err := tenantdb.Get[model.Obligation](s.store.Conn(ctx).Preload("Party"), id)
	if err != nil {
		return nil, tenantdb.NotFoundAs(err, "obligation")
	}
	if err := access.CheckParty(who, o.PartyID); err != nil {
		return nil, err
	}
	out := o.Project(s.now())
	return &out, nil
}

// List returns the tenant's obligations ordered by due date. Restricted
// actors only see their own party's obligations.
func (s *Service) List(ctx context.Context, f ListFilter) (_ []model.Obligation, err error) {
	ctx, end := s.span(ctx, "list", "")
	defer func() { end(err) }()

	who, err := access.Authorize(ctx, access.ReadObligation)
	if err != nil {
		return nil, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("unknown status " + string(f.Status))
	}

	q := s.store.Conn(ctx).Model(&model.Obligation{}).Preload("Party")

	if own := access.PartyFilter(who); !who.Privileged() {
		if own == "" || (f.PartyID != "" && f.PartyID != own) {
			return []model.Obligation{}, nil
		}
		q = q.Where("obligations.party_id = ?", own)
	}
	if f.PartyID != "" {
		q = q.Where("obligations.party_id = ?", f.PartyID)
	}

	// Narrow by persisted status; the displayed status is checked below.
	switch f.Status {
	case "":
	case model.StatusOverdue:
		q = q.Where("obligations.status <> ?", model.StatusApproved)
	default:
		q = q.Where("obligations.status = ?", f.Status)
	}

	if text := strings.TrimSpace(f.Text); text != "" {
		pattern := "%" + escapeLike(strings.ToLower(text)) + "%"
		q = q.Joins("LEFT JOIN parties ON parties.id = obligations.party_id AND parties.tenant_id = obligations.tenant_id").
			Where(`(LOWER(obligations.title) LIKE ? ESCAPE '\' OR LOWER(parties.name) LIKE ? ESCAPE '\')`, pattern, pattern)
	}

	var rows []model.Obligation
	if err := q.Order("obligations.due_date ASC").Order("obligations.id ASC").Find(&rows).Error; err != nil {
		return nil, tenantdb.Translate(err)
	}

	now := s.now()
	out := make([]model.Obligation, 0, len(rows))
	for _, o := range rows {
		p := o.Project(now)
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		out = append(out, p)
	}

	logger.FromContext(ctx).Debug("Obligations retrieved", zap.Int("count", len(out)))
	return out, nil
}

// Update changes descriptive fields of an obligation. It never touches the
// status.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (_ *model.Obligation, err error) {
	ctx, end := s.span(ctx, "update", id)
	defer func() {
		prometheus.RecordOperation("obligation", "update", err)
		end(err)
	}()

	who, err := access.Authorize(ctx, access.UpdateObligation)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}
	var fields []string
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" || len(title) > maxTitleLength {
			return nil, apperr.Validation("title must be 1 to 255 characters")
		}
		changes["title"] = title
		fields = append(fields, "title")
	}
	if in.Category != nil {
		if !in.Category.Valid() {
			return nil, apperr.Validation("category must be PAYMENT, DOCUMENT or APPROVAL")
		}
		changes["category"] = *in.Category
		fields = append(fields, "category")
	}
	if in.DueDate != nil {
		if in.DueDate.IsZero() {
			return nil, apperr.Validation("due_date must be set")
		}
		changes["due_date"] = *in.DueDate
		fields = append(fields, "due_date")
	}
	if in.Description != nil {
		changes["description"] = *in.Description
		fields = append(fields, "description")
	}
	if in.PartyID != nil {
		if *in.PartyID == "" {
			return nil, apperr.Validation("party_id must be set")
		}
		changes["party_id"] = *in.PartyID
		fields = append(fields, "party_id")
	}

	var o model.Obligation
	err = s.store.Tx(ctx, func(tx *gorm.DB) error {
		if in.PartyID != nil {
			exists, err := tenantdb.Exists[model.Party](tx, *in.PartyID)
			if err != nil {
				return err
			}
			if !exists {
				return apperr.Validation("party does not exist")
			}
		}
		if len(changes) > 0 {
			if err := tenantdb.Update[model.Obligation](tx, id, changes); err != nil {
				return tenantdb.NotFoundAs(err, "obligation")
			}
			if err := s.recorder.Record(ctx, tx, audit.Entry{
				EntityType: model.EntityObligation,
				EntityID:   id,
				Action:     model.ActionUpdated,
				Metadata:   map[string]interface{}{"fields": fields},
			}); err != nil {
				return err
			}
		}
		current, err := tenantdb.Get[model.Obligation](tx.Preload("Party"), id)
		if err != nil {
			return tenantdb.NotFoundAs(err, "obligation")
		}
		o = *current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(changes) > 0 {
		logger.FromContext(ctx).Info("Obligation updated successfully",
			zap.String("obligation_id", id),
			zap.Strings("fields", fields))
		s.analysis.Enqueue(ctx, analysis.MethodAnalyze, analysisRequest(who, &o))
	}
	out := o.Project(s.now())
	return &out, nil
}

func analysisRequest(who reqctx.Identity, o *model.Obligation) analysis.Request {
	return analysis.Request{
		TenantID:     who.TenantID,
		ObligationID: o.ID,
		Title:        o.Title,
		Category:     string(o.Category),
		Status:       string(o.Status),
		Description:  o.Description,
	}
}

// loadOwned reads the party of obligation id through db and checks the
// caller may access it.
func loadOwned(db *gorm.DB, who reqctx.Identity, id string) (*model.Obligation, error) {
	o, err := tenantdb.Get[model.Obligation](db.Select("id", "party_id", "status"), id)
	if err != nil {
		return nil, tenantdb.NotFoundAs(err, "obligation")
	}
	if err := access.CheckParty(who, o.PartyID); err != nil {
		return nil, err
	}
	return o, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
