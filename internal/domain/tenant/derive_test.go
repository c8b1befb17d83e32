package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roster/backend/internal/domain/identity"
)

func TestDeriveTenant(t *testing.T) {
	user, err := identity.NewUser("main", "batchadmin")
	require.NoError(t, err)
	user.SetAttr("department", identity.NewScalarAttr("org7"))
	user.SetAttr("cohort", identity.NewMultiAttr("2025", "2026"))

	tenant := DeriveTenant(user, []string{"department"}, []string{"department", "cohort"}, true)

	assert.Equal(t, user.ID, tenant.ID)
	assert.Equal(t, "main", tenant.Realm)
	assert.Equal(t, "batchadmin", tenant.Username)
	assert.True(t, tenant.NoPrefixAllowed)

	require.Len(t, tenant.LinkedFields, 1)
	assert.Equal(t, "department", tenant.LinkedFields[0].Key)
	assert.Equal(t, "org7", tenant.LinkedFields[0].Value.Scalar())
	assert.False(t, tenant.LinkedFields[0].Multi)

	require.Len(t, tenant.PrefixFields, 2)
	assert.Equal(t, "cohort", tenant.PrefixFields[1].Key)
	assert.True(t, tenant.PrefixFields[1].Multi)
}

func TestDeriveTenant_MissingAttrDenies(t *testing.T) {
	user, err := identity.NewUser("main", "batchadmin")
	require.NoError(t, err)

	tenant := DeriveTenant(user, []string{"department"}, nil, false)
	scope := NewScope(tenant)

	assert.True(t, scope.MatchFilter().DenyAll())
}

func TestFilter_Conditions(t *testing.T) {
	user, err := identity.NewUser("main", "batchadmin")
	require.NoError(t, err)
	user.SetAttr("department", identity.NewScalarAttr("org7"))
	user.SetAttr("cohort", identity.NewMultiAttr("2025", "2026"))

	tenant := DeriveTenant(user, []string{"department", "cohort"}, nil, false)
	conds := NewScope(tenant).MatchFilter().Conditions()

	require.Len(t, conds, 2)
	assert.Equal(t, "department", conds[0].Key)
	assert.Equal(t, []string{"org7"}, conds[0].Values)
	assert.False(t, conds[0].Multi)
	assert.Equal(t, []string{"2025", "2026"}, conds[1].Values)
	assert.True(t, conds[1].Multi)
}

func TestFilter_Conditions_SelectedValue(t *testing.T) {
	user, err := identity.NewUser("main", "batchadmin")
	require.NoError(t, err)
	user.SetAttr("cohort", identity.NewMultiAttr("2025", "2026"))

	tenant := DeriveTenant(user, []string{"cohort"}, nil, false)
	scope := NewScope(tenant, WithSelectedValue("cohort", "2026"))
	conds := scope.MatchFilter().Conditions()

	require.Len(t, conds, 1)
	assert.Equal(t, []string{"2026"}, conds[0].Values)
}
