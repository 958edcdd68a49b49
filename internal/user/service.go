package user

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stratus-cloud/stratus/internal/audit"
	"github.com/stratus-cloud/stratus/internal/authz"
)

// Operation names gated by the authorization guard.
const (
	OpCheckUsername  = "user.check_username"
	OpCreate         = "user.create"
	OpLoad           = "user.load"
	OpStoreDetails   = "user.store_details"
	OpChangePassword = "user.change_password"
)

// Rules is the declared rule table for user operations.
var Rules = map[string][]string{
	OpCheckUsername:  {"role:ROLE_ANONYMOUS,scope:ANY"},
	OpCreate:         {"role:ROLE_ANONYMOUS,scope:ANY"},
	OpLoad:           {"role:ROLE_USER,scope:SELF_NAME", "role:ROLE_ROOT_ADMIN,scope:ANY"},
	OpStoreDetails:   {"role:ROLE_USER,scope:SELF_ID"},
	OpChangePassword: {"role:ROLE_USER,scope:SELF_ID"},
}

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	FindByID(ctx context.Context, id int64) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, u *User) error
	UpdateDetails(ctx context.Context, u User) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

// AuditPort records privileged mutations.
type AuditPort interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Service handles user lifecycle business logic.
type Service struct {
	repo   RepositoryPort
	hasher Hasher
	guard  *authz.Guard
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds a Service. The rule table is parsed here; a malformed
// rule fails construction rather than a request.
func NewService(repo RepositoryPort, hasher Hasher, audit AuditPort, logger *slog.Logger) (*Service, error) {
	guard, err := authz.NewGuard(Rules)
	if err != nil {
		return nil, err
	}
	return &Service{repo: repo, hasher: hasher, guard: guard, audit: audit, logger: logger}, nil
}

// Guard exposes the service guard for decision metrics wiring.
func (s *Service) Guard() *authz.Guard { return s.guard }

// CreateInput carries the fields for a new user.
type CreateInput struct {
	Username         string
	Password         string
	Email            string
	FirstName        string
	LastName         string
	SecurityQuestion string
	SecurityAnswer   string
}

// CheckUsername reports whether the username is valid and unused.
func (s *Service) CheckUsername(ctx context.Context, caller authz.Principal, username string) error {
	if err := s.guard.Authorize(OpCheckUsername, authz.Context{Caller: caller}); err != nil {
		return err
	}
	if err := ValidateUsername(username); err != nil {
		return err
	}
	_, err := s.repo.FindByUsername(ctx, username)
	if err == nil {
		return ErrUsernameTaken
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Create registers a new user. Open to anonymous callers: sign-up happens
// before any identity exists.
func (s *Service) Create(ctx context.Context, caller authz.Principal, in CreateInput) (User, error) {
	if err := s.guard.Authorize(OpCreate, authz.Context{Caller: caller}); err != nil {
		return User{}, err
	}
	if err := ValidateUsername(in.Username); err != nil {
		return User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, err
	}
	u := User{
		Username:         CanonicalUsername(in.Username),
		Email:            in.Email,
		PasswordHash:     hash,
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		SecurityQuestion: in.SecurityQuestion,
		SecurityAnswer:   in.SecurityAnswer,
	}
	if err := s.repo.Create(ctx, &u); err != nil {
		return User{}, err
	}

	s.recordAudit(ctx, u.ID, "user.created", u.ID, map[string]any{"username": u.Username})
	return u, nil
}

// LoadByUsername returns a user's own profile, or any profile for root
// administrators.
func (s *Service) LoadByUsername(ctx context.Context, caller authz.Principal, username string) (User, error) {
	actx := authz.Context{Caller: caller, TargetName: CanonicalUsername(username)}
	if err := s.guard.Authorize(OpLoad, actx); err != nil {
		return User{}, err
	}
	return s.repo.FindByUsername(ctx, username)
}

// DetailsInput carries mutable profile fields.
type DetailsInput struct {
	Email            string
	FirstName        string
	LastName         string
	SecurityQuestion string
	SecurityAnswer   string
}

// StoreDetails updates a user's own profile fields.
func (s *Service) StoreDetails(ctx context.Context, caller authz.Principal, userID int64, in DetailsInput) error {
	actx := authz.Context{Caller: caller, TargetID: userID}
	if err := s.guard.Authorize(OpStoreDetails, actx); err != nil {
		return err
	}

	current, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	current.Email = in.Email
	current.FirstName = in.FirstName
	current.LastName = in.LastName
	current.SecurityQuestion = in.SecurityQuestion
	current.SecurityAnswer = in.SecurityAnswer
	return s.repo.UpdateDetails(ctx, current)
}

// ChangePassword replaces a user's own password after verifying the old
// one.
func (s *Service) ChangePassword(ctx context.Context, caller authz.Principal, userID int64, oldPassword, newPassword string) error {
	actx := authz.Context{Caller: caller, TargetID: userID}
	if err := s.guard.Authorize(OpChangePassword, actx); err != nil {
		return err
	}

	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(u.PasswordHash, oldPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	s.recordAudit(ctx, caller.ID, "user.password_changed", userID, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, userID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	e := audit.Entry{ActorID: actorID, Action: action, Entity: "user", EntityID: userID, Meta: meta}
	if err := s.audit.Record(ctx, e); err != nil && s.logger != nil {
		s.logger.Error("record audit entry", slog.String("action", action), slog.Any("error", err))
	}
}
