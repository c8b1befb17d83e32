package identity

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roster/backend/internal/domain/enrol"
	"github.com/roster/backend/internal/domain/tenant"
)

// CapabilityResolver computes the capability set an operator carries into a
// session. The set is embedded in the token at login and refresh.
type CapabilityResolver interface {
	CapabilitiesFor(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// archetypeCapabilities maps role archetypes to the capabilities they grant.
// Capabilities accumulate across roles; there are no negative grants.
var archetypeCapabilities = map[string][]string{
	"manager": {
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
	},
	"editingteacher": {
		tenant.CapGroupView,
		tenant.CapGroupManage,
		tenant.CapGroupAssign,
		tenant.CapEnrolManage,
	},
	"teacher": {
		tenant.CapGroupView,
	},
}

// RoleCapabilityResolver derives capabilities from the system-level roles the
// operator holds, via the role archetype.
type RoleCapabilityResolver struct {
	enrolments enrol.EnrolmentRepository
	logger     *zap.Logger
}

// NewRoleCapabilityResolver creates a role-backed capability resolver.
func NewRoleCapabilityResolver(enrolments enrol.EnrolmentRepository, logger *zap.Logger) *RoleCapabilityResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleCapabilityResolver{enrolments: enrolments, logger: logger}
}

var _ CapabilityResolver = (*RoleCapabilityResolver)(nil)

// CapabilitiesFor returns the union of capabilities granted by the user's
// system roles. A user without system roles gets an empty set, never nil.
func (r *RoleCapabilityResolver) CapabilitiesFor(ctx context.Context, userID uuid.UUID) ([]string, error) {
	roles, err := r.enrolments.FindSystemRoles(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	capabilities := make([]string, 0)
	for _, role := range roles {
		granted, ok := archetypeCapabilities[role.Archetype]
		if !ok {
			r.logger.Debug("role archetype grants no capabilities",
				zap.String("role", role.ShortName),
				zap.String("archetype", role.Archetype))
			continue
		}
		for _, capability := range granted {
			if !seen[capability] {
				seen[capability] = true
				capabilities = append(capabilities, capability)
			}
		}
	}
	return capabilities, nil
}
