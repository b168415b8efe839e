package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDisplayStatusProjectsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		status Status
		due    time.Time
		want   Status
	}{
		{"pending past due", StatusPending, past, StatusOverdue},
		{"changes requested past due", StatusChangesRequested, past, StatusOverdue},
		{"pending not due", StatusPending, future, StatusPending},
		{"approved past due", StatusApproved, past, StatusApproved},
		{"submitted past due", StatusSubmitted, past, StatusOverdue},
		{"under review past due", StatusUnderReview, past, StatusOverdue},
		{"submitted not due", StatusSubmitted, future, StatusSubmitted},
		{"stored overdue", StatusOverdue, future, StatusOverdue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Obligation{Status: tt.status, DueDate: tt.due}
			assert.Equal(t, tt.want, o.DisplayStatus(now))
		})
	}
}

func TestProjectKeepsPersistedStatus(t *testing.T) {
	now := time.Now()
	o := Obligation{Status: StatusPending, DueDate: now.Add(-24 * time.Hour)}

	projected := o.Project(now)

	assert.Equal(t, StatusOverdue, projected.Status)
	assert.Equal(t, StatusPending, projected.PersistedStatus)
	assert.Equal(t, StatusPending, o.Status, "projection must not mutate the original")
}

func TestEnumsValid(t *testing.T) {
	for _, s := range Statuses {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("REJECTED").Valid())
	assert.True(t, CategoryPayment.Valid())
	assert.False(t, Category("OTHER").Valid())
	assert.True(t, EntityObligation.Valid())
	assert.False(t, EntityType("INVOICE").Valid())
	assert.True(t, StatusApproved.Terminal())
	assert.False(t, StatusSubmitted.Terminal())
}

func TestUserIdentity(t *testing.T) {
	party := "party-1"
	u := User{ID: "u1", TenantID: "t1", Role: "RESTRICTED", PartyID: &party}
	id := u.Identity()
	assert.Equal(t, "u1", id.ActorID)
	assert.Equal(t, "t1", id.TenantID)
	assert.Equal(t, "party-1", id.PartyID)
	assert.False(t, id.Privileged())
}
