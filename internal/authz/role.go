package authz

import "fmt"

// Role is a named level in the fixed account role hierarchy.
// The ordering is total and set at compile time.
type Role int8

const (
	RoleAnonymous Role = iota
	RoleUser
	RoleAdmin
	RoleRootAdmin
)

var roleNames = map[Role]string{
	RoleAnonymous: "ROLE_ANONYMOUS",
	RoleUser:      "ROLE_USER",
	RoleAdmin:     "ROLE_ADMIN",
	RoleRootAdmin: "ROLE_ROOT_ADMIN",
}

var rolesByName = map[string]Role{
	"ROLE_ANONYMOUS":  RoleAnonymous,
	"ROLE_USER":       RoleUser,
	"ROLE_ADMIN":      RoleAdmin,
	"ROLE_ROOT_ADMIN": RoleRootAdmin,
}

// ParseRole resolves a case-sensitive role name such as "ROLE_ADMIN".
func ParseRole(name string) (Role, error) {
	r, ok := rolesByName[name]
	if !ok {
		return RoleAnonymous, fmt.Errorf("authz: unknown role %q", name)
	}
	return r, nil
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ROLE_UNKNOWN(%d)", int8(r))
}

// Valid reports whether r is a recognized hierarchy level.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// Dominates reports whether r is at or above other in the hierarchy.
// Unrecognized values never dominate anything.
func (r Role) Dominates(other Role) bool {
	return r.Valid() && other.Valid() && r >= other
}

// Implied returns r together with every role it dominates, highest first.
func (r Role) Implied() []Role {
	if !r.Valid() {
		return nil
	}
	implied := make([]Role, 0, int(r)+1)
	for lvl := r; lvl >= RoleAnonymous; lvl-- {
		implied = append(implied, lvl)
	}
	return implied
}

// MaxRole returns the highest role in the slice, or RoleAnonymous when the
// slice is empty. Holding no right on an account is the floor of the
// hierarchy, so an absent relationship always compares lowest.
func MaxRole(roles []Role) Role {
	max := RoleAnonymous
	for _, r := range roles {
		if r.Valid() && r > max {
			max = r
		}
	}
	return max
}

// ImpliedUnion expands each role to its implied set and returns the union,
// highest first, with RoleAnonymous excluded: anonymous is the hierarchy
// floor, not a grantable right.
func ImpliedUnion(roles []Role) []Role {
	max := MaxRole(roles)
	union := make([]Role, 0, int(max))
	for lvl := max; lvl > RoleAnonymous; lvl-- {
		union = append(union, lvl)
	}
	return union
}
