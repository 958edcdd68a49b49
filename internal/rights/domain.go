package rights

import (
	"errors"
	"time"

	"github.com/stratus-cloud/stratus/internal/authz"
)

// AccountRights associates a user with an account and the set of roles
// held there. One row per (account, user) pair; the row exists only while
// the user has at least one right, so deletion is membership termination.
type AccountRights struct {
	AccountID int64
	UserID    int64
	Roles     []authz.Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Member is a rights row joined with the holder's identity, as returned
// by member listings.
type Member struct {
	AccountRights

	Username string
	Email    string
}

var (
	// ErrNotFound indicates no rights row exists for the pair.
	ErrNotFound = errors.New("rights: not found")
	// ErrEmptyRoleSet indicates a grant carried no roles; revocation is a
	// separate operation, never an empty grant.
	ErrEmptyRoleSet = errors.New("rights: empty role set")
)

// RolesEqual compares two role sets ignoring order and duplicates.
func RolesEqual(a, b []authz.Role) bool {
	seen := make(map[authz.Role]bool, len(a))
	for _, r := range a {
		seen[r] = true
	}
	matched := make(map[authz.Role]bool, len(b))
	for _, r := range b {
		if !seen[r] {
			return false
		}
		matched[r] = true
	}
	return len(seen) == len(matched)
}
