package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Obligation is a trackable task with a due date and a lifecycle status.
type Obligation struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36);index:idx_obligations_tenant_lookup,priority:2"`
	TenantID    string    `json:"tenant_id" gorm:"type:varchar(36);not null;index:idx_obligations_tenant_lookup,priority:1;index:idx_obligations_tenant_party,priority:1"`
	PartyID     string    `json:"party_id" gorm:"type:varchar(36);not null;index:idx_obligations_tenant_party,priority:2"`
	Title       string    `json:"title" gorm:"type:varchar(255);not null"`
	Category    Category  `json:"category" gorm:"type:varchar(20);not null"`
	DueDate     time.Time `json:"due_date" gorm:"not null;index"`
	Status      Status    `json:"status" gorm:"type:varchar(30);not null;default:'PENDING';index"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// PersistedStatus is the stored status when Status holds a projection.
	PersistedStatus Status `json:"persisted_status,omitempty" gorm:"-"`
	Party           *Party `json:"party,omitempty" gorm:"foreignKey:PartyID"`
}

// TenantOwned marks the model as tenant-scoped.
func (Obligation) TenantOwned() {}

// BeforeCreate assigns a random id.
func (o *Obligation) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// DisplayStatus is the status shown to callers at time now. An unapproved
// obligation past its due date reads as overdue; the stored status is left
// untouched.
func (o Obligation) DisplayStatus(now time.Time) Status {
	if !o.Status.Terminal() && o.DueDate.Before(now) {
		return StatusOverdue
	}
	return o.Status
}

// Project returns a copy carrying the display status at time now.
func (o Obligation) Project(now time.Time) Obligation {
	o.PersistedStatus = o.Status
	o.Status = o.DisplayStatus(now)
	return o
}

// Comment is an append-only note on an obligation.
type Comment struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36);index:idx_comments_tenant_lookup,priority:2"`
	TenantID     string    `json:"tenant_id" gorm:"type:varchar(36);not null;index:idx_comments_tenant_lookup,priority:1;index:idx_comments_tenant_obligation,priority:1"`
	ObligationID string    `json:"obligation_id" gorm:"type:varchar(36);not null;index:idx_comments_tenant_obligation,priority:2"`
	AuthorID     string    `json:"author_id" gorm:"type:varchar(36);not null"`
	Message      string    `json:"message" gorm:"type:text;not null"`
	CreatedAt    time.Time `json:"created_at"`
}

// TenantOwned marks the model as tenant-scoped.
func (Comment) TenantOwned() {}

// BeforeCreate assigns a random id.
func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Attachment records a file stored for an obligation. The bytes live in blob
// storage under StorageRef.
type Attachment struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36);index:idx_attachments_tenant_lookup,priority:2"`
	TenantID     string    `json:"tenant_id" gorm:"type:varchar(36);not null;index:idx_attachments_tenant_lookup,priority:1;index:idx_attachments_tenant_obligation,priority:1"`
	ObligationID string    `json:"obligation_id" gorm:"type:varchar(36);not null;index:idx_attachments_tenant_obligation,priority:2"`
	UploaderID   string    `json:"uploader_id" gorm:"type:varchar(36);not null"`
	FileName     string    `json:"file_name" gorm:"type:varchar(255);not null"`
	StorageRef   string    `json:"-" gorm:"type:varchar(512);not null"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

// TenantOwned marks the model as tenant-scoped.
func (Attachment) TenantOwned() {}

// BeforeCreate assigns a random id.
func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// DownloadURL is the API path serving the attachment bytes.
func (a Attachment) DownloadURL() string {
	return "/api/attachments/" + a.ID + "/download"
}
