package account

import (
	"context"
	"log/slog"

	"github.com/stratus-cloud/stratus/internal/audit"
	"github.com/stratus-cloud/stratus/internal/authz"
)

// Operation names gated by the authorization guard.
const (
	OpCreate    = "account.create"
	OpRead      = "account.read"
	OpUpdate    = "account.update"
	OpSetStatus = "account.set_status"
)

// Rules is the declared rule table for account operations.
var Rules = map[string][]string{
	OpCreate:    {"role:ROLE_USER,scope:ANY"},
	OpRead:      {"role:ROLE_USER,scope:SELF_ACCT", "role:ROLE_ROOT_ADMIN,scope:ANY"},
	OpUpdate:    {"role:ROLE_ADMIN,scope:SELF_ACCT", "role:ROLE_ROOT_ADMIN,scope:ANY"},
	OpSetStatus: {"role:ROLE_ROOT_ADMIN,scope:ANY"},
}

// RepositoryPort defines data access methods for accounts.
type RepositoryPort interface {
	FindByID(ctx context.Context, id int64) (Account, error)
	FindBySubdomain(ctx context.Context, subdomain string) (Account, error)
	RolesOn(ctx context.Context, accountID, userID int64) ([]authz.Role, error)
	CreateWithAdmin(ctx context.Context, a *Account, adminUserID int64, roles []authz.Role) error
	UpdateInfo(ctx context.Context, id int64, name, orgName, department string) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
}

// AuditPort records privileged mutations.
type AuditPort interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Service handles account lifecycle business logic.
type Service struct {
	repo   RepositoryPort
	guard  *authz.Guard
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds a Service; the rule table is parsed at construction.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) (*Service, error) {
	guard, err := authz.NewGuard(Rules)
	if err != nil {
		return nil, err
	}
	return &Service{repo: repo, guard: guard, audit: audit, logger: logger}, nil
}

// Guard exposes the service guard for decision metrics wiring.
func (s *Service) Guard() *authz.Guard { return s.guard }

// CreateInput carries the fields for a new account.
type CreateInput struct {
	Name       string
	Subdomain  string
	OrgName    string
	Department string
}

// Create provisions a new account. The creator receives admin rights on
// it in the same transaction.
func (s *Service) Create(ctx context.Context, caller authz.Principal, in CreateInput) (Account, error) {
	if err := s.guard.Authorize(OpCreate, authz.Context{Caller: caller}); err != nil {
		return Account{}, err
	}

	a := Account{
		Name:       in.Name,
		Subdomain:  in.Subdomain,
		OrgName:    in.OrgName,
		Department: in.Department,
		Status:     StatusPending,
	}
	creatorRoles := authz.ImpliedUnion([]authz.Role{authz.RoleAdmin})
	if err := s.repo.CreateWithAdmin(ctx, &a, caller.ID, creatorRoles); err != nil {
		return Account{}, err
	}

	s.recordAudit(ctx, caller.ID, "account.created", a.ID, map[string]any{"subdomain": a.Subdomain})
	return a, nil
}

// Get returns an account visible to the caller.
func (s *Service) Get(ctx context.Context, caller authz.Principal, accountID int64) (Account, error) {
	actx, err := s.buildContext(ctx, caller, accountID)
	if err != nil {
		return Account{}, err
	}
	if err := s.guard.Authorize(OpRead, actx); err != nil {
		return Account{}, err
	}
	return s.repo.FindByID(ctx, accountID)
}

// UpdateInfoInput carries the account's descriptive fields.
type UpdateInfoInput struct {
	Name       string
	OrgName    string
	Department string
}

// UpdateInfo stores descriptive account fields.
func (s *Service) UpdateInfo(ctx context.Context, caller authz.Principal, accountID int64, in UpdateInfoInput) error {
	actx, err := s.buildContext(ctx, caller, accountID)
	if err != nil {
		return err
	}
	if err := s.guard.Authorize(OpUpdate, actx); err != nil {
		return err
	}

	if err := s.repo.UpdateInfo(ctx, accountID, in.Name, in.OrgName, in.Department); err != nil {
		return err
	}
	s.recordAudit(ctx, caller.ID, "account.updated", accountID, nil)
	return nil
}

// SetStatus moves the account through its lifecycle. Platform operation.
func (s *Service) SetStatus(ctx context.Context, caller authz.Principal, accountID int64, status Status) error {
	if err := s.guard.Authorize(OpSetStatus, authz.Context{Caller: caller, AccountID: accountID}); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, accountID, status); err != nil {
		return err
	}
	s.recordAudit(ctx, caller.ID, "account.status_changed", accountID, map[string]any{"status": string(status)})
	return nil
}

func (s *Service) buildContext(ctx context.Context, caller authz.Principal, accountID int64) (authz.Context, error) {
	actx := authz.Context{Caller: caller, AccountID: accountID}
	if caller.ID == 0 {
		return actx, nil
	}
	roles, err := s.repo.RolesOn(ctx, accountID, caller.ID)
	if err != nil {
		return authz.Context{}, err
	}
	actx.CallerAccountRoles = roles
	return actx, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, accountID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	e := audit.Entry{ActorID: actorID, Action: action, Entity: "account", EntityID: accountID, Meta: meta}
	if err := s.audit.Record(ctx, e); err != nil && s.logger != nil {
		s.logger.Error("record audit entry", slog.String("action", action), slog.Any("error", err))
	}
}
