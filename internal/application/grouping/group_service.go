// Package grouping holds the application service for tenant-facing group
// management: scoped listing, creation under the namespace prefix, and
// membership changes.
package grouping

import (
	"context"
	"errors"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roster/backend/internal/domain/grouping"
	"github.com/roster/backend/internal/domain/identity"
	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/domain/tenant"
)

// Typed service failures.
var (
	// ErrExternalGroup marks a group owned by an external component.
	ErrExternalGroup = shared.NewDomainError(shared.CodeExternalResource, "group is managed by an external component")
	// ErrReadonlyGroup marks a group carrying the readonly marker; tenants may
	// list it but never change it.
	ErrReadonlyGroup = shared.NewDomainError(shared.CodeScopeViolation, "group is readonly for this tenant")
	// ErrPrefixRequired marks a tenant whose scope cannot derive a prefix and
	// is not allowed to operate without one.
	ErrPrefixRequired = shared.NewDomainError(shared.CodeScopeViolation, "tenant prefix required for group operations")
)

// GroupService manages the slice of the shared group table visible to a
// tenant. Names cross the API boundary in decoded form; the encoded idnumber
// only ever exists between the scope codec and the store.
type GroupService struct {
	groups grouping.GroupRepository
	users  identity.UserRepository
	authz  tenant.Authorizer
	// contextID is the context new groups are created in.
	contextID uuid.UUID
	logger    *zap.Logger
}

// NewGroupService creates a new group service.
func NewGroupService(
	groups grouping.GroupRepository,
	users identity.UserRepository,
	authz tenant.Authorizer,
	contextID uuid.UUID,
	logger *zap.Logger,
) *GroupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupService{
		groups:    groups,
		users:     users,
		authz:     authz,
		contextID: contextID,
		logger:    logger,
	}
}

// List returns the page of groups under the tenant's namespace prefix,
// decoded for the scope. A scope without a derivable prefix sees nothing
// unless it may operate unprefixed.
func (s *GroupService) List(ctx context.Context, scope *tenant.Scope, filter shared.Filter) ([]*grouping.Group, int64, error) {
	if !s.authz.Can(scope.Tenant().ID, tenant.CapGroupView) {
		return nil, 0, shared.NewDomainError(shared.CodePermissionDenied, "no permission to view groups")
	}

	pattern, ok := scope.DerivePrefix(true)
	if !ok {
		if !scope.NoPrefixAllowed() {
			return []*grouping.Group{}, 0, nil
		}
		// Unprefixed tenants see every group in the creation context.
		pattern = ""
	}

	groups, total, err := s.groups.FindAllByPrefixPattern(ctx, pattern, filter)
	if err != nil {
		return nil, 0, err
	}
	for _, g := range groups {
		g.Decode(scope)
	}
	return groups, total, nil
}

// Get returns one group if it is visible under the scope.
func (s *GroupService) Get(ctx context.Context, scope *tenant.Scope, id uuid.UUID) (*grouping.Group, error) {
	if !s.authz.Can(scope.Tenant().ID, tenant.CapGroupView) {
		return nil, shared.NewDomainError(shared.CodePermissionDenied, "no permission to view groups")
	}

	group, err := s.groups.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.visible(scope, group) {
		// Out-of-scope groups are indistinguishable from missing ones.
		return nil, shared.ErrNotFound
	}
	group.Decode(scope)
	return group, nil
}

// Create creates a group under the tenant's namespace prefix. The requested
// name is the decoded base name; the readonly marker cannot be smuggled in.
func (s *GroupService) Create(ctx context.Context, scope *tenant.Scope, name string) (*grouping.Group, error) {
	if !s.authz.Can(scope.Tenant().ID, tenant.CapGroupManage) {
		return nil, shared.NewDomainError(shared.CodePermissionDenied, "no permission to create groups")
	}
	if name == "" {
		return nil, shared.NewDomainError(shared.CodeValidation, "empty group name")
	}

	idnumber, decision := scope.AddPrefix(name)
	if decision == tenant.PrefixDenied {
		return nil, ErrPrefixRequired
	}
	if scope.IsReadonly(idnumber) {
		return nil, ErrReadonlyGroup
	}

	exists, err := s.groups.ExistsByIDNumber(ctx, idnumber)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError(shared.CodeConflict, "group already exists")
	}

	group := grouping.NewGroup(idnumber, s.contextID)
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, err
	}
	group.Decode(scope)

	s.logger.Info("group created",
		zap.String("tenant_id", scope.Tenant().ID.String()),
		zap.String("idnumber", group.IDNumber))
	return group, nil
}

// AddMember adds an in-scope identity to an in-scope, writable group. Adding
// an existing member is a no-op.
func (s *GroupService) AddMember(ctx context.Context, scope *tenant.Scope, groupID, userID uuid.UUID) error {
	group, err := s.writableGroup(ctx, scope, groupID)
	if err != nil {
		return err
	}
	if err := s.checkMemberVisible(ctx, scope, userID); err != nil {
		return err
	}
	return s.groups.AddMember(ctx, group.ID, userID)
}

// RemoveMember removes an in-scope identity from an in-scope, writable group.
func (s *GroupService) RemoveMember(ctx context.Context, scope *tenant.Scope, groupID, userID uuid.UUID) error {
	group, err := s.writableGroup(ctx, scope, groupID)
	if err != nil {
		return err
	}
	if err := s.checkMemberVisible(ctx, scope, userID); err != nil {
		return err
	}
	return s.groups.RemoveMember(ctx, group.ID, userID)
}

// writableGroup loads a group and checks the tenant may change its
// membership: in scope, not readonly, not externally managed.
func (s *GroupService) writableGroup(ctx context.Context, scope *tenant.Scope, groupID uuid.UUID) (*grouping.Group, error) {
	if !s.authz.Can(scope.Tenant().ID, tenant.CapGroupAssign) {
		return nil, shared.NewDomainError(shared.CodePermissionDenied, "no permission to change group membership")
	}

	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !s.visible(scope, group) {
		return nil, shared.ErrNotFound
	}
	if group.External() {
		return nil, ErrExternalGroup
	}
	if scope.IsReadonly(group.IDNumber) {
		return nil, ErrReadonlyGroup
	}
	return group, nil
}

// checkMemberVisible verifies the identity is within the tenant's scope.
func (s *GroupService) checkMemberVisible(ctx context.Context, scope *tenant.Scope, userID uuid.UUID) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrNotFound
		}
		return err
	}
	if user.Realm != scope.Tenant().Realm || !scope.MatchFilter().Matches(user.Attrs) {
		return shared.ErrNotFound
	}
	return nil
}

// visible reports whether the group falls under the tenant's namespace. A
// group outside the prefix is visible only to unprefixed tenants, and only
// when it carries no other tenant's encoding.
func (s *GroupService) visible(scope *tenant.Scope, group *grouping.Group) bool {
	pattern, ok := scope.DerivePrefix(true)
	if !ok {
		return scope.NoPrefixAllowed()
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return false
	}
	loc := re.FindStringIndex(group.IDNumber)
	return loc != nil && loc[0] == 0
}
