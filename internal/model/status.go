package model

// Status is the lifecycle status of an obligation.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusSubmitted        Status = "SUBMITTED"
	StatusUnderReview      Status = "UNDER_REVIEW"
	StatusApproved         Status = "APPROVED"
	StatusChangesRequested Status = "CHANGES_REQUESTED"
	StatusOverdue          Status = "OVERDUE"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusSubmitted,
	StatusUnderReview,
	StatusApproved,
	StatusChangesRequested,
	StatusOverdue,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSubmitted, StatusUnderReview, StatusApproved, StatusChangesRequested, StatusOverdue:
		return true
	}
	return false
}

// Terminal reports whether no actor-driven transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusApproved
}

// Category is the kind of obligation.
type Category string

const (
	CategoryPayment  Category = "PAYMENT"
	CategoryDocument Category = "DOCUMENT"
	CategoryApproval Category = "APPROVAL"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryPayment, CategoryDocument, CategoryApproval:
		return true
	}
	return false
}
