package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlanTier is the commercial plan of a tenant.
type PlanTier string

const (
	PlanFree       PlanTier = "FREE"
	PlanPro        PlanTier = "PRO"
	PlanEnterprise PlanTier = "ENTERPRISE"
)

// Valid reports whether p is a known plan tier.
func (p PlanTier) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// TenantStatus tells whether a tenant may operate.
type TenantStatus string

const (
	TenantActive    TenantStatus = "ACTIVE"
	TenantSuspended TenantStatus = "SUSPENDED"
)

// Tenant is the root of isolation. It is not itself tenant-scoped.
type Tenant struct {
	ID        string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name      string       `json:"name" gorm:"type:varchar(100);not null"`
	PlanTier  PlanTier     `json:"plan_tier" gorm:"type:varchar(20);not null;default:'FREE'"`
	Status    TenantStatus `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// BeforeCreate assigns a random id.
func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Active reports whether the tenant is not suspended.
func (t Tenant) Active() bool {
	return t.Status != TenantSuspended
}
