package authz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGuardRejectsBadTable(t *testing.T) {
	_, err := NewGuard(map[string][]string{"op": {"role:ROLE_ADMIN"}})
	require.ErrorIs(t, err, ErrRuleFormat)

	_, err = NewGuard(map[string][]string{"op": {}})
	require.Error(t, err)
}

func TestGuardDisjunction(t *testing.T) {
	guard, err := NewGuard(map[string][]string{
		"profile.read": {
			"role:ROLE_USER,scope:SELF_ID",
			"role:ROLE_ROOT_ADMIN,scope:ANY",
		},
	})
	require.NoError(t, err)

	self := Context{Caller: Principal{ID: 7, Roles: []Role{RoleUser}}, TargetID: 7}
	require.NoError(t, guard.Authorize("profile.read", self))

	// The second rule rescues a caller the first denies.
	root := Context{Caller: Principal{ID: 1, Roles: []Role{RoleUser, RoleRootAdmin}}, TargetID: 7}
	require.NoError(t, guard.Authorize("profile.read", root))

	other := Context{Caller: Principal{ID: 9, Roles: []Role{RoleUser}}, TargetID: 7}
	require.ErrorIs(t, guard.Authorize("profile.read", other), ErrDenied)
}

func TestGuardUnknownOperationDenies(t *testing.T) {
	guard, err := NewGuard(nil)
	require.NoError(t, err)
	require.ErrorIs(t, guard.Authorize("never.declared", Context{}), ErrDenied)
}

func TestGuardObserver(t *testing.T) {
	guard, err := NewGuard(map[string][]string{
		"anything": {"role:ROLE_ANONYMOUS,scope:ANY"},
	})
	require.NoError(t, err)

	var ops []string
	var outcomes []bool
	guard.Observe(func(op string, allowed bool) {
		ops = append(ops, op)
		outcomes = append(outcomes, allowed)
	})

	require.NoError(t, guard.Authorize("anything", Context{}))
	require.Error(t, guard.Authorize("missing", Context{}))
	require.Equal(t, []string{"anything", "missing"}, ops)
	require.Equal(t, []bool{true, false}, outcomes)
}
