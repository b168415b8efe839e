package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EntityType names the kind of entity an activity entry refers to.
type EntityType string

const (
	EntityObligation EntityType = "OBLIGATION"
	EntityParty      EntityType = "PARTY"
	EntityUser       EntityType = "USER"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityObligation, EntityParty, EntityUser:
		return true
	}
	return false
}

// Action tags what happened to the entity.
type Action string

const (
	ActionCreated         Action = "CREATED"
	ActionUpdated         Action = "UPDATED"
	ActionDeleted         Action = "DELETED"
	ActionStatusChanged   Action = "STATUS_CHANGED"
	ActionCommented       Action = "COMMENTED"
	ActionAttachmentAdded Action = "ATTACHMENT_ADDED"
)

// ActivityLogEntry is an immutable record of one state-changing operation.
type ActivityLogEntry struct {
	ID         string            `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID   string            `json:"tenant_id" gorm:"type:varchar(36);not null;index:idx_activity_tenant_entity,priority:1;index:idx_activity_tenant_created,priority:1"`
	ActorID    string            `json:"actor_id" gorm:"type:varchar(36);not null"`
	EntityType EntityType        `json:"entity_type" gorm:"type:varchar(30);not null;index:idx_activity_tenant_entity,priority:2"`
	EntityID   string            `json:"entity_id" gorm:"type:varchar(36);not null;index:idx_activity_tenant_entity,priority:3"`
	Action     Action            `json:"action" gorm:"type:varchar(30);not null"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at" gorm:"index:idx_activity_tenant_created,priority:2"`
}

// TableName keeps the table name stable.
func (ActivityLogEntry) TableName() string {
	return "activity_logs"
}

// TenantOwned marks the model as tenant-scoped.
func (ActivityLogEntry) TenantOwned() {}

// BeforeCreate assigns a random id.
func (e *ActivityLogEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// All returns every model managed by the service, in migration order.
func All() []interface{} {
	return []interface{}{
		&Tenant{},
		&Credential{},
		&Party{},
		&User{},
		&Obligation{},
		&Comment{},
		&Attachment{},
		&ActivityLogEntry{},
	}
}
