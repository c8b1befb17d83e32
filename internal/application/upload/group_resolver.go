package upload

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/roster/backend/internal/domain/grouping"
	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/domain/tenant"
)

// Typed resolver failures, consumed by the reconciler for audit entries.
var (
	// ErrExternalGroup marks a group owned by an external component. It can
	// be reported but never modified.
	ErrExternalGroup = shared.NewDomainError(shared.CodeExternalResource, "group is managed by an external component")
	// ErrPrefixRequired marks a tenant whose scope cannot derive a prefix
	// and is not allowed to operate without one.
	ErrPrefixRequired = shared.NewDomainError(shared.CodeScopeViolation, "tenant prefix required for group operations")
	// ErrGroupPermission marks a missing group management capability.
	ErrGroupPermission = shared.NewDomainError(shared.CodePermissionDenied, "no permission to create groups")
	// ErrGroupNameConflict marks a name where both the plain and the
	// readonly encoded variant already exist.
	ErrGroupNameConflict = shared.NewDomainError(shared.CodeConflict, "group name matches both a plain and a readonly group")
	// ErrReadonlyGroupCreate marks an attempt to create a group under the
	// readonly marker. Readonly groups can be matched but never created.
	ErrReadonlyGroupCreate = shared.NewDomainError(shared.CodePermissionDenied, "cannot create a readonly group")
)

var numericName = regexp.MustCompile(`^[0-9]+$`)

// GroupResolver finds or creates the group an upload column refers to,
// applying the tenant's prefix rules.
type GroupResolver struct {
	groups    grouping.GroupRepository
	authz     tenant.Authorizer
	contextID uuid.UUID
}

// NewGroupResolver creates a resolver. Auto-created groups are placed in the
// given context.
func NewGroupResolver(groups grouping.GroupRepository, authz tenant.Authorizer, contextID uuid.UUID) *GroupResolver {
	return &GroupResolver{
		groups:    groups,
		authz:     authz,
		contextID: contextID,
	}
}

// ResolveOrCreate resolves a requested group name for the tenant scope. A
// purely numeric name is treated as a literal idnumber lookup and is never
// auto-created. A name that already carries the tenant prefix is cut back to
// its base form before matching. Otherwise the name is matched under the
// tenant prefix; a miss creates the group when the tenant holds the manage
// capability, except when the readonly variant was asked for.
func (r *GroupResolver) ResolveOrCreate(ctx context.Context, scope *tenant.Scope, requestedName string) (*grouping.Group, error) {
	if requestedName == "" {
		return nil, shared.NewDomainError(shared.CodeValidation, "empty group name")
	}

	if numericName.MatchString(requestedName) {
		group, err := r.groups.FindByIDNumber(ctx, requestedName)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, shared.NewDomainError(shared.CodeExternalResource,
					fmt.Sprintf("group id %s not found", requestedName))
			}
			return nil, err
		}
		if group.External() {
			return nil, ErrExternalGroup
		}
		group.Decode(scope)
		return group, nil
	}

	// An input already carrying the prefix, like "org7_math101" or
	// "org7_r_math101", is matched on its base name. Remember whether the
	// readonly variant was named so a lookup miss never creates it.
	readonlyRequested := scope.IsReadonly(requestedName)
	if cut := scope.StripPrefix(requestedName, true); cut != "" && cut != requestedName {
		requestedName = cut
	}

	group, err := r.lookup(ctx, scope, requestedName)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if group != nil {
		if group.External() {
			return nil, ErrExternalGroup
		}
		group.Decode(scope)
		return group, nil
	}

	if readonlyRequested {
		return nil, ErrReadonlyGroupCreate
	}

	if !r.authz.Can(scope.Tenant().ID, tenant.CapGroupManage) {
		return nil, ErrGroupPermission
	}

	name, decision := scope.AddPrefix(requestedName)
	if decision == tenant.PrefixDenied {
		return nil, ErrPrefixRequired
	}

	created := grouping.NewGroup(name, r.contextID)
	if err := r.groups.Create(ctx, created); err != nil {
		return nil, err
	}
	created.Decode(scope)
	return created, nil
}

// lookup matches the requested name under the tenant prefix. When both the
// plain and the readonly encoded variant exist the match is ambiguous.
func (r *GroupResolver) lookup(ctx context.Context, scope *tenant.Scope, name string) (*grouping.Group, error) {
	pattern, ok := scope.GroupPattern(name)
	if !ok {
		if !scope.NoPrefixAllowed() {
			return nil, ErrPrefixRequired
		}
		pattern = "^" + regexp.QuoteMeta(name) + "$"
		return r.groups.FindByIDNumberPattern(ctx, pattern)
	}

	prefix, _ := scope.DerivePrefix(false)
	plainExists, err := r.groups.ExistsByIDNumber(ctx, prefix+name)
	if err != nil {
		return nil, err
	}
	readonlyExists, err := r.groups.ExistsByIDNumber(ctx, prefix+"r_"+name)
	if err != nil {
		return nil, err
	}
	if plainExists && readonlyExists {
		return nil, ErrGroupNameConflict
	}

	return r.groups.FindByIDNumberPattern(ctx, pattern)
}
