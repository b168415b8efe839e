package obligation

import (
	"obligation-service/internal/access"
	"obligation-service/internal/model"
)

// Transition is an actor-driven status change.
type Transition string

const (
	Submit         Transition = "submit"
	Approve        Transition = "approve"
	RequestChanges Transition = "request_changes"
	Reset          Transition = "reset"
)

// rule is one row of the lifecycle table.
type rule struct {
	op     access.Operation
	target model.Status
	from   []model.Status
}

// rule returns the table row for t. ok is false for unknown transitions.
func (t Transition) rule() (rule, bool) {
	switch t {
	case Submit:
		return rule{
			op:     access.Submit,
			target: model.StatusSubmitted,
			from:   []model.Status{model.StatusPending, model.StatusChangesRequested, model.StatusOverdue},
		}, true
	case Approve:
		return rule{
			op:     access.Approve,
			target: model.StatusApproved,
			from:   []model.Status{model.StatusSubmitted, model.StatusUnderReview},
		}, true
	case RequestChanges:
		return rule{
			op:     access.RequestChanges,
			target: model.StatusChangesRequested,
			from:   []model.Status{model.StatusSubmitted, model.StatusUnderReview},
		}, true
	case Reset:
		return rule{
			op:     access.Reset,
			target: model.StatusPending,
			from:   []model.Status{model.StatusChangesRequested},
		}, true
	}
	return rule{}, false
}

// Allowed reports whether t may leave status from.
func (t Transition) Allowed(from model.Status) bool {
	r, ok := t.rule()
	if !ok {
		return false
	}
	for _, s := range r.from {
		if s == from {
			return true
		}
	}
	return false
}
