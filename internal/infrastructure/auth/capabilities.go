package auth

import (
	"github.com/google/uuid"

	"github.com/roster/backend/internal/domain/tenant"
)

// ClaimsAuthorizer answers capability checks from the capabilities carried in
// a validated access token. Checks for any tenant other than the token's own
// are refused.
type ClaimsAuthorizer struct {
	claims *Claims
}

// NewClaimsAuthorizer creates an authorizer bound to the given claims.
func NewClaimsAuthorizer(claims *Claims) *ClaimsAuthorizer {
	return &ClaimsAuthorizer{claims: claims}
}

var _ tenant.Authorizer = (*ClaimsAuthorizer)(nil)

// Can reports whether the token grants the capability for the tenant.
func (a *ClaimsAuthorizer) Can(tenantID uuid.UUID, capability string) bool {
	if a.claims == nil {
		return false
	}
	if a.claims.TenantID != tenantID.String() {
		return false
	}
	return a.claims.HasCapability(capability)
}

// AllCapabilities lists every capability the identity batch surface checks.
// Tokens issued for administrative operators carry the full set.
func AllCapabilities() []string {
	return []string{
		tenant.CapUserCreate,
		tenant.CapUserUpdate,
		tenant.CapUserDelete,
		tenant.CapUserRename,
		tenant.CapUserSuspend,
		tenant.CapUploadUsers,
		tenant.CapGroupManage,
		tenant.CapGroupView,
		tenant.CapGroupAssign,
		tenant.CapRoleAssign,
		tenant.CapEnrolManage,
	}
}
