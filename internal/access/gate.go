// Package access decides whether the calling actor may perform an operation.
package access

import (
	"context"

	"obligation-service/internal/apperr"
	"obligation-service/internal/reqctx"
)

// Operation names a guarded operation.
type Operation string

const (
	CreateParty      Operation = "party.create"
	UpdateParty      Operation = "party.update"
	DeleteParty      Operation = "party.delete"
	ReadParty        Operation = "party.read"
	CreateObligation Operation = "obligation.create"
	UpdateObligation Operation = "obligation.update"
	ReadObligation   Operation = "obligation.read"
	Submit           Operation = "obligation.submit"
	Approve          Operation = "obligation.approve"
	RequestChanges   Operation = "obligation.request_changes"
	Reset            Operation = "obligation.reset"
	Comment          Operation = "obligation.comment"
	Attach           Operation = "obligation.attach"
	ReadActivity     Operation = "activity.read"
	CreateActor      Operation = "user.create"
	ReadSelf         Operation = "user.self"
)

// roles lists the roles allowed to attempt each operation. Ownership of a
// specific party is checked separately once the target row is loaded.
var roles = map[Operation][]reqctx.Role{
	CreateParty:      {reqctx.RolePrivileged},
	UpdateParty:      {reqctx.RolePrivileged},
	DeleteParty:      {reqctx.RolePrivileged},
	ReadParty:        {reqctx.RolePrivileged, reqctx.RoleRestricted},
	CreateObligation: {reqctx.RolePrivileged},
	UpdateObligation: {reqctx.RolePrivileged},
	ReadObligation:   {reqctx.RolePrivileged, reqctx.RoleRestricted},
	Submit:           {reqctx.RoleRestricted},
	Approve:          {reqctx.RolePrivileged},
	RequestChanges:   {reqctx.RolePrivileged},
	Reset:            {reqctx.RolePrivileged},
	Comment:          {reqctx.RolePrivileged, reqctx.RoleRestricted},
	Attach:           {reqctx.RolePrivileged, reqctx.RoleRestricted},
	ReadActivity:     {reqctx.RolePrivileged, reqctx.RoleRestricted},
	CreateActor:      {reqctx.RolePrivileged},
	ReadSelf:         {reqctx.RolePrivileged, reqctx.RoleRestricted},
}

// Authorize returns the caller's identity when it may attempt op. It runs
// before any data access.
func Authorize(ctx context.Context, op Operation) (reqctx.Identity, error) {
	id, ok := reqctx.IdentityFrom(ctx)
	if !ok {
		return reqctx.Identity{}, apperr.ErrUnauthorized
	}
	if !id.Role.Valid() {
		return reqctx.Identity{}, apperr.New(apperr.CodeForbidden, "unknown role")
	}
	for _, r := range roles[op] {
		if r == id.Role {
			return id, nil
		}
	}
	return reqctx.Identity{}, apperr.New(apperr.CodeForbidden, "role "+string(id.Role)+" may not perform "+string(op))
}

// CheckParty applies party ownership to a row already read inside the
// caller's tenant. Privileged actors see every party of their tenant.
func CheckParty(id reqctx.Identity, partyID string) error {
	if id.Privileged() {
		return nil
	}
	if id.PartyID == "" || id.PartyID != partyID {
		return apperr.New(apperr.CodeForbidden, "not the owning party")
	}
	return nil
}

// PartyFilter returns the party id that restricts list results for id, or
// "" when the actor may see the whole tenant.
func PartyFilter(id reqctx.Identity) string {
	if id.Privileged() {
		return ""
	}
	return id.PartyID
}
