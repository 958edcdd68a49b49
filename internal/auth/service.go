package auth

import (
	"context"
	"errors"

	"github.com/stratus-cloud/stratus/internal/authz"
	"github.com/stratus-cloud/stratus/internal/user"
)

// ErrInvalidCredentials masks the reason a login failed.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// UsersPort resolves login names to stored users.
type UsersPort interface {
	FindByUsername(ctx context.Context, username string) (user.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	users  UsersPort
	hasher user.Hasher
}

// NewService constructs a new Service.
func NewService(users UsersPort, hasher user.Hasher) *Service {
	return &Service{users: users, hasher: hasher}
}

// Authenticate validates username/password credentials and returns the
// resolved principal. Unknown users and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, username, password string) (authz.Principal, error) {
	u, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return authz.Principal{}, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		return authz.Principal{}, ErrInvalidCredentials
	}
	return Principal(u), nil
}

// Principal maps a stored user onto its global roles. Account-scoped
// roles are resolved per request from account rights, not here.
func Principal(u user.User) authz.Principal {
	roles := []authz.Role{authz.RoleUser}
	if u.RootAdmin {
		roles = append(roles, authz.RoleRootAdmin)
	}
	return authz.Principal{ID: u.ID, Name: u.Username, Roles: roles}
}
