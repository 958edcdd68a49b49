package authz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole("ROLE_ADMIN")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, r)

	_, err = ParseRole("ROLE_admin")
	require.Error(t, err)

	_, err = ParseRole("FOO")
	require.Error(t, err)
}

func TestDominatesMatchesImpliedSet(t *testing.T) {
	all := []Role{RoleAnonymous, RoleUser, RoleAdmin, RoleRootAdmin}
	for _, a := range all {
		implied := map[Role]bool{}
		for _, r := range a.Implied() {
			implied[r] = true
		}
		for _, b := range all {
			require.Equal(t, implied[b], a.Dominates(b), "a=%s b=%s", a, b)
		}
	}
}

func TestDominatesTiesAreNonStrict(t *testing.T) {
	require.True(t, RoleAdmin.Dominates(RoleAdmin))
	require.True(t, RoleUser.Dominates(RoleAnonymous))
	require.False(t, RoleUser.Dominates(RoleAdmin))
}

func TestDominatesRejectsUnknownValues(t *testing.T) {
	bogus := Role(42)
	require.False(t, bogus.Dominates(RoleUser))
	require.False(t, RoleRootAdmin.Dominates(bogus))
	require.Nil(t, bogus.Implied())
}

func TestMaxRole(t *testing.T) {
	require.Equal(t, RoleAnonymous, MaxRole(nil))
	require.Equal(t, RoleAdmin, MaxRole([]Role{RoleUser, RoleAdmin}))
	require.Equal(t, RoleUser, MaxRole([]Role{RoleUser, Role(99)}))
}

func TestImpliedUnion(t *testing.T) {
	// Granting admin also grants user; anonymous is never stored.
	require.Equal(t, []Role{RoleAdmin, RoleUser}, ImpliedUnion([]Role{RoleAdmin}))
	require.Equal(t, []Role{RoleUser}, ImpliedUnion([]Role{RoleUser, RoleUser}))
	require.Empty(t, ImpliedUnion(nil))
}
