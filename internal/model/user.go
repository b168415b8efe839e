package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"obligation-service/internal/reqctx"
)

// User is an actor that can authenticate against one tenant.
type User struct {
	ID           string      `json:"id" gorm:"primaryKey;type:varchar(36);index:idx_users_tenant_lookup,priority:2"`
	TenantID     string      `json:"tenant_id" gorm:"type:varchar(36);not null;index:idx_users_tenant_lookup,priority:1"`
	Name         string      `json:"name" gorm:"type:varchar(100);not null"`
	Email        string      `json:"email" gorm:"type:varchar(255);index;not null"`
	Role         reqctx.Role `json:"role" gorm:"type:varchar(20);not null"`
	// PartyID links a restricted actor to the one party it may access.
	PartyID   *string   `json:"party_id,omitempty" gorm:"type:varchar(36);index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TenantOwned marks the model as tenant-scoped.
func (User) TenantOwned() {}

// BeforeCreate assigns a random id.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Identity builds the request identity of this actor.
func (u User) Identity() reqctx.Identity {
	id := reqctx.Identity{
		ActorID:  u.ID,
		TenantID: u.TenantID,
		Role:     u.Role,
	}
	if u.PartyID != nil {
		id.PartyID = *u.PartyID
	}
	return id
}

// Credential holds the login secret of a user. Email is unique across all
// tenants, so credentials are looked up before any tenant scope exists and
// the table is not tenant-scoped. It carries no business data.
type Credential struct {
	Email        string    `json:"email" gorm:"primaryKey;type:varchar(255)"`
	UserID       string    `json:"user_id" gorm:"type:varchar(36);uniqueIndex;not null"`
	TenantID     string    `json:"tenant_id" gorm:"type:varchar(36);not null"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
