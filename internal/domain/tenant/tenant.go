// Package tenant models the operator identity and the scope derived from it.
// A tenant only ever sees identities whose linked profile attributes match its
// own, and only groups living under the namespace prefix built from its
// prefix attributes.
package tenant

import (
	"github.com/google/uuid"
	"github.com/roster/backend/internal/domain/identity"
)

// ScopeField binds a profile attribute key to the tenant's own value for it.
// Multi declares the attribute multi-valued; multi-valued fields may carry a
// selected value for the current batch.
type ScopeField struct {
	Key   string
	Value identity.AttrValue
	Multi bool
}

// Tenant is the operator on whose behalf a batch runs.
type Tenant struct {
	ID       uuid.UUID
	Realm    string
	Username string

	// LinkedFields are forced onto every identity the tenant manages.
	LinkedFields []ScopeField
	// PrefixFields build the group namespace prefix, joined with "_".
	PrefixFields []ScopeField

	// NoPrefixAllowed permits group operations without a prefix. It is
	// ignored (forced off) as soon as any prefix field value is empty.
	NoPrefixAllowed bool
}

// Capability names checked against the authorization collaborator.
const (
	CapUserCreate  = "user:create"
	CapUserUpdate  = "user:update"
	CapUserDelete  = "user:delete"
	CapUserRename  = "user:rename"
	CapUserSuspend = "user:suspend"
	CapUploadUsers = "user:upload"
	CapGroupManage = "group:manage"
	CapGroupView   = "group:view"
	CapGroupAssign = "group:assign"
	CapRoleAssign  = "role:assign"
	CapEnrolManage = "enrol:manage"
)

// Authorizer is the authorization collaborator: capability checks keyed by
// (tenant, capability name).
type Authorizer interface {
	Can(tenantID uuid.UUID, capability string) bool
}
