// Package party manages the client records obligations belong to.
package party

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"obligation-service/internal/access"
	"obligation-service/internal/apperr"
	"obligation-service/internal/audit"
	"obligation-service/internal/model"
	"obligation-service/internal/tenantdb"
	"obligation-service/pkg/logger"
	"obligation-service/prometheus"
)

// Service runs party operations for the caller in the request context.
type Service struct {
	store    *tenantdb.Store
	recorder *audit.Recorder
}

// NewService creates a party service.
func NewService(store *tenantdb.Store, recorder *audit.Recorder) *Service {
	return &Service{store: store, recorder: recorder}
}

// Input holds party fields. On update, nil fields stay as they are.
type Input struct {
	Name  *string
	Email *string
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("name is required")
	}
	if len(name) > 255 {
		return "", apperr.Validation("name is too long")
	}
	return name, nil
}

func cleanEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", apperr.Validation("email is invalid")
	}
	// "Bob <bob@example.com>" stores only the address.
	return strings.ToLower(addr.Address), nil
}

// Create adds a party to the caller's tenant.
func (s *Service) Create(ctx context.Context, in Input) (_ *model.Party, err error) {
	defer func() { prometheus.RecordOperation("party", "create", err) }()

	if _, err := access.Authorize(ctx, access.CreateParty); err != nil {
		return nil, err
	}
	if in.Name == nil {
		return nil, apperr.Validation("name is required")
	}
	name, err := cleanName(*in.Name)
	if err != nil {
		return nil, err
	}
	p := &model.Party{Name: name}
	if in.Email != nil {
		if p.Email, err = cleanEmail(*in.Email); err != nil {
			return nil, err
		}
	}

	err = s.store.Tx(ctx, func(tx *gorm.DB) error {
		if err := tenantdb.Create(tx, p); err != nil {
			return err
		}
		return s.recorder.Record(ctx, tx, audit.Entry{
			EntityType: model.EntityParty,
			EntityID:   p.ID,
			Action:     model.ActionCreated,
			Metadata:   map[string]interface{}{"name": p.Name},
		})
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Party created successfully", zap.String("party_id", p.ID))
	return p, nil
}

// List returns the tenant's parties, newest first. A restricted actor sees
// only the party it belongs to.
func (s *Service) List(ctx context.Context) ([]model.Party, error) {
	who, err := access.Authorize(ctx, access.ReadParty)
	if err != nil {
		return nil, err
	}
	q := s.store.Conn(ctx).Model(&model.Party{})
	if !who.Privileged() {
		if who.PartyID == "" {
			return []model.Party{}, nil
		}
		q = q.Where("id = ?", who.PartyID)
	}

	var parties []model.Party
	if err := q.Order("created_at DESC").Order("id DESC").Find(&parties).Error; err != nil {
		return nil, tenantdb.Translate(err)
	}
	return parties, nil
}

// Get returns one party.
func (s *Service) Get(ctx context.Context, id string) (*model.Party, error) {
	who, err := access.Authorize(ctx, access.ReadParty)
	if err != nil {
		return nil, err
	}
	p, err := tenantdb.Get[model.Party](s.store.Conn(ctx), id)
	if err != nil {
		return nil, tenantdb.NotFoundAs(err, "party")
	}
	if err := access.CheckParty(who, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// Update changes a party's name or email.
func (s *Service) Update(ctx context.Context, id string, in Input) (_ *model.Party, err error) {
	defer func() { prometheus.RecordOperation("party", "update", err) }()

	if _, err := access.Authorize(ctx, access.UpdateParty); err != nil {
		return nil, err
	}
	changes := map[string]interface{}{}
	var fields []string
	if in.Name != nil {
		name, err := cleanName(*in.Name)
		if err != nil {
			return nil, err
		}
		changes["name"] = name
		fields = append(fields, "name")
	}
	if in.Email != nil {
		email, err := cleanEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		changes["email"] = email
		fields = append(fields, "email")
	}

	var p *model.Party
	err = s.store.Tx(ctx, func(tx *gorm.DB) error {
		if len(changes) > 0 {
			if err := tenantdb.Update[model.Party](tx, id, changes); err != nil {
				return tenantdb.NotFoundAs(err, "party")
			}
			if err := s.recorder.Record(ctx, tx, audit.Entry{
				EntityType: model.EntityParty,
				EntityID:   id,
				Action:     model.ActionUpdated,
				Metadata:   map[string]interface{}{"fields": fields},
			}); err != nil {
				return err
			}
		}
		var err error
		p, err = tenantdb.Get[model.Party](tx, id)
		return tenantdb.NotFoundAs(err, "party")
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Delete soft-deletes a party. Its obligations stay in place.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	defer func() { prometheus.RecordOperation("party", "delete", err) }()

	if _, err := access.Authorize(ctx, access.DeleteParty); err != nil {
		return err
	}
	err = s.store.Tx(ctx, func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&model.Party{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("party")
		}
		return s.recorder.Record(ctx, tx, audit.Entry{
			EntityType: model.EntityParty,
			EntityID:   id,
			Action:     model.ActionDeleted,
		})
	})
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("Party deleted successfully", zap.String("party_id", id))
	return nil
}
