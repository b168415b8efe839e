package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Party is a tenant's client record; obligations belong to a party.
type Party struct {
	ID        string         `json:"id" gorm:"primaryKey;type:varchar(36);index:idx_parties_tenant_lookup,priority:2"`
	TenantID  string         `json:"tenant_id" gorm:"type:varchar(36);not null;index:idx_parties_tenant_lookup,priority:1"`
	Name      string         `json:"name" gorm:"type:varchar(255);not null"`
	Email     string         `json:"email" gorm:"type:varchar(255)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TenantOwned marks the model as tenant-scoped.
func (Party) TenantOwned() {}

// BeforeCreate assigns a random id.
func (p *Party) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
