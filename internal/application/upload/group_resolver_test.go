package upload

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/roster/backend/internal/domain/grouping"
	"github.com/roster/backend/internal/domain/identity"
	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/domain/tenant"
)

func testScope(t *testing.T, opts ...tenant.ScopeOption) *tenant.Scope {
	t.Helper()
	ten := &tenant.Tenant{
		ID:       uuid.New(),
		Realm:    "default",
		Username: "admin7",
		LinkedFields: []tenant.ScopeField{
			{Key: "org", Value: identity.NewScalarAttr("org7")},
		},
		PrefixFields: []tenant.ScopeField{
			{Key: "org", Value: identity.NewScalarAttr("org7")},
		},
	}
	return tenant.NewScope(ten, opts...)
}

func TestGroupResolver_NumericLookup(t *testing.T) {
	groups := new(MockGroupRepository)
	resolver := NewGroupResolver(groups, allowAll(), uuid.New())
	scope := testScope(t)

	existing := grouping.NewGroup("12345", uuid.New())
	groups.On("FindByIDNumber", mock.Anything, "12345").Return(existing, nil)

	group, err := resolver.ResolveOrCreate(context.Background(), scope, "12345")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, group.ID)
	groups.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGroupResolver_NumericNeverAutoCreated(t *testing.T) {
	groups := new(MockGroupRepository)
	resolver := NewGroupResolver(groups, allowAll(), uuid.New())
	scope := testScope(t)

	groups.On("FindByIDNumber", mock.Anything, "12345").Return(nil, shared.ErrNotFound)

	_, err := resolver.ResolveOrCreate(context.Background(), scope, "12345")
	require.Error(t, err)
	groups.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGroupResolver_FindsExistingUnderPrefix(t *testing.T) {
	groups := new(MockGroupRepository)
	resolver := NewGroupResolver(groups, allowAll(), uuid.New())
	scope := testScope(t)

	existing := grouping.NewGroup("org7_math101", uuid.New())
	groups.On("ExistsByIDNumber", mock.Anything, "org7_math101").Return(true, nil)
	groups.On("ExistsByIDNumber", mock.Anything, "org7_r_math101").Return(false, nil)
	groups.On("FindByIDNumberPattern", mock.Anything, "^org7_(r_)?math101$").Return(existing, nil)

	group, err := resolver.ResolveOrCreate(context.Background(), scope, "math101")
	require.NoError(t, err)
	assert.Equal(t, "math101", group.BaseName)
	assert.False(t, group.Readonly)
}

func TestGroupResolver_PrefixedInputMatchesExisting(t *testing.T) {
	groups := new(MockGroupRepository)
	resolver := NewGroupResolver(groups, allowAll(), uuid.New())
	scope := testScope(t)

	existing := grouping.NewGroup("org7_math101", uuid.New())
	groups.On("ExistsByIDNumber", mock.Anything, "org7_math101").Return(true, nil)
	groups.On("ExistsByIDNumber", mock.Anything, "org7_r_math101").Return(false, nil)
	groups.On("FindByIDNumberPattern", mock.Anything, "^org7_(r_)?math101$").Return(existing, nil)

	group, err := resolver.ResolveOrCreate(context.Background(), scope, "org7_math101")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, group.ID)
	assert.Equal(t, "math101", group.BaseName)
	groups.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGroupResolver_ReadonlyVariantNeverCreated(t *testing.T) {
	groups := new(MockGroupRepository)
	resolver := NewGroupResolver(groups, allowAll(), uuid.New())
	scope := testScope(t)

	groups.On("ExistsByIDNumber", mock.Anything, "org7_math101").Return(false, nil)
	groups.On("ExistsByIDNumber", mock.Anything, "org7_r_math101").Return(false, nil)
	groups.On("FindByIDNumberPattern", mock.Anything, "^org7_(r_)?math101$").Return(nil, shared.ErrNotFound)

	_, err := resolver.ResolveOrCreate(context.Background(), scope, "org7_r_math101")
	assert.ErrorIs(t, err, ErrReadonlyGroupCreate)
	groups.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGroupResolver_PlainAndReadonlyTie(t *testing.T) {
	groups := new(MockGroupRepository)
	resolver := NewGroupResolver(groups, allowAll(), uuid.New())
	scope := testScope(t)

	groups.On("ExistsByIDNumber", mock.Anything, "org7_math101").Return(true, nil)
	groups.On("ExistsByIDNumber", mock.Anything, "org7_r_math101").Return(true, nil)

	_, err := resolver.ResolveOrCreate(context.Background(), scope, "math101")
	assert.ErrorIs(t, err, ErrGroupNameConflict)
}

func TestGroupResolver_ExternalGroup(t *testing.T) {
	groups := new(MockGroupRepository)
	resolver := NewGroupResolver(groups, allowAll(), uuid.New())
	scope := testScope(t)

	external := grouping.NewGroup("org7_lti", uuid.New())
	external.Component = "enrol_lti"
	groups.On("ExistsByIDNumber", mock.Anything, "org7_lti").Return(true, nil)
	groups.On("ExistsByIDNumber", mock.Anything, "org7_r_lti").Return(false, nil)
	groups.On("FindByIDNumberPattern", mock.Anything, "^org7_(r_)?lti$").Return(external, nil)

	_, err := resolver.ResolveOrCreate(context.Background(), scope, "lti")
	assert.ErrorIs(t, err, ErrExternalGroup)
}

func TestGroupResolver_CreatesWithPrefix(t *testing.T) {
	groups := new(MockGroupRepository)
	ctxID := uuid.New()
	resolver := NewGroupResolver(groups, allowAll(), ctxID)
	scope := testScope(t)

	groups.On("ExistsByIDNumber", mock.Anything, "org7_math101").Return(false, nil)
	groups.On("ExistsByIDNumber", mock.Anything, "org7_r_math101").Return(false, nil)
	groups.On("FindByIDNumberPattern", mock.Anything, "^org7_(r_)?math101$").Return(nil, shared.ErrNotFound)
	groups.On("Create", mock.Anything, mock.MatchedBy(func(g *grouping.Group) bool {
		return g.IDNumber == "org7_math101" && g.Name == "org7_math101" && g.ContextID == ctxID
	})).Return(nil)

	group, err := resolver.ResolveOrCreate(context.Background(), scope, "math101")
	require.NoError(t, err)
	assert.Equal(t, "org7_math101", group.IDNumber)
	assert.Equal(t, "math101", group.BaseName)
	groups.AssertExpectations(t)
}

func TestGroupResolver_CreateRequiresCapability(t *testing.T) {
	groups := new(MockGroupRepository)
	resolver := NewGroupResolver(groups, allowAll().deny(tenant.CapGroupManage), uuid.New())
	scope := testScope(t)

	groups.On("ExistsByIDNumber", mock.Anything, mock.Anything).Return(false, nil)
	groups.On("FindByIDNumberPattern", mock.Anything, mock.Anything).Return(nil, shared.ErrNotFound)

	_, err := resolver.ResolveOrCreate(context.Background(), scope, "math101")
	assert.ErrorIs(t, err, ErrGroupPermission)
}

func TestGroupResolver_EmptyPrefixValueDeniesEverything(t *testing.T) {
	groups := new(MockGroupRepository)
	resolver := NewGroupResolver(groups, allowAll(), uuid.New())

	ten := &tenant.Tenant{
		ID:       uuid.New(),
		Realm:    "default",
		Username: "admin7",
		PrefixFields: []tenant.ScopeField{
			{Key: "org", Value: identity.NewScalarAttr("")},
		},
		NoPrefixAllowed: true,
	}
	scope := tenant.NewScope(ten)

	_, err := resolver.ResolveOrCreate(context.Background(), scope, "math101")
	assert.ErrorIs(t, err, ErrPrefixRequired)
}
