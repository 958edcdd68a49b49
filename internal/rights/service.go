package rights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stratus-cloud/stratus/internal/audit"
	"github.com/stratus-cloud/stratus/internal/authz"
)

// Operation names gated by the authorization guard.
const (
	OpSetRights    = "user.set_rights"
	OpRevokeRights = "user.revoke_rights"
	OpListMembers  = "account.list_members"
)

// Rules is the declared rule table for rights operations. Root
// administrators bypass the relative-privilege constraints.
var Rules = map[string][]string{
	OpSetRights:    {"role:ROLE_ADMIN,scope:SELF_ACCT_PEER_UPDATE", "role:ROLE_ROOT_ADMIN,scope:ANY"},
	OpRevokeRights: {"role:ROLE_ADMIN,scope:SELF_ACCT_PEER", "role:ROLE_ROOT_ADMIN,scope:ANY"},
	OpListMembers:  {"role:ROLE_USER,scope:SELF_ACCT", "role:ROLE_ROOT_ADMIN,scope:ANY"},
}

// RepositoryPort defines data access methods for account rights.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, accountID, userID int64) (AccountRights, error)
	ListByAccount(ctx context.Context, accountID int64) ([]Member, error)
	ListByUser(ctx context.Context, userID int64) ([]AccountRights, error)
}

// AuditPort records privileged mutations.
type AuditPort interface {
	Record(ctx context.Context, e audit.Entry) error
}

// QueuePort enqueues non-critical notification mail for a user. The
// worker resolves the address. Delivery is best effort and never blocks
// a rights change.
type QueuePort interface {
	EnqueueUserEmail(ctx context.Context, userID int64, subject, body string) error
}

// Service implements the guarded account membership operations.
type Service struct {
	repo   RepositoryPort
	guard  *authz.Guard
	audit  AuditPort
	queue  QueuePort
	logger *slog.Logger
}

// NewService builds a Service; the rule table is parsed at construction.
func NewService(repo RepositoryPort, audit AuditPort, queue QueuePort, logger *slog.Logger) (*Service, error) {
	guard, err := authz.NewGuard(Rules)
	if err != nil {
		return nil, err
	}
	return &Service{repo: repo, guard: guard, audit: audit, queue: queue, logger: logger}, nil
}

// Guard exposes the service guard for decision metrics wiring.
func (s *Service) Guard() *authz.Guard { return s.guard }

// GrantRoles replaces the target's role set on the account with the
// implied-set union of the requested roles. This assigns, never appends:
// granting USER to an ADMIN demotes. Returns true when the stored set
// changed; an identical set is a no-op and performs no write. The read,
// the authorization check, and the write share one transaction.
func (s *Service) GrantRoles(ctx context.Context, caller authz.Principal, accountID, targetUserID int64, roles []authz.Role) (bool, error) {
	for _, role := range roles {
		if !role.Valid() || role == authz.RoleAnonymous {
			return false, fmt.Errorf("rights: role %s is not grantable", role)
		}
	}
	proposed := authz.ImpliedUnion(roles)
	if len(proposed) == 0 {
		return false, ErrEmptyRoleSet
	}

	changed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, actx, err := s.buildPeerContext(ctx, tx, caller, accountID, targetUserID)
		if err != nil {
			return err
		}
		actx.ProposedRoles = proposed
		if err := s.guard.Authorize(OpSetRights, actx); err != nil {
			return err
		}

		if RolesEqual(current.Roles, proposed) {
			return nil
		}
		changed = true
		return tx.Save(ctx, AccountRights{AccountID: accountID, UserID: targetUserID, Roles: proposed})
	})
	if err != nil {
		return false, err
	}

	if changed {
		s.recordAudit(ctx, caller.ID, "rights.granted", accountID, targetUserID,
			map[string]any{"roles": roleNames(proposed)})
		s.notify(ctx, targetUserID, "Your account access changed",
			fmt.Sprintf("Your roles on account %d were updated.", accountID))
	}
	return changed, nil
}

// RevokeAllRights deletes the target's rights row on the account,
// terminating membership. Revoking an absent membership is a no-op.
func (s *Service) RevokeAllRights(ctx context.Context, caller authz.Principal, accountID, targetUserID int64) error {
	var removed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, actx, err := s.buildPeerContext(ctx, tx, caller, accountID, targetUserID)
		if err != nil {
			return err
		}
		if err := s.guard.Authorize(OpRevokeRights, actx); err != nil {
			return err
		}
		removed, err = tx.Delete(ctx, accountID, targetUserID)
		return err
	})
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	s.recordAudit(ctx, caller.ID, "rights.revoked", accountID, targetUserID, nil)
	s.notify(ctx, targetUserID, "Your account access was removed",
		fmt.Sprintf("Your membership of account %d was revoked.", accountID))
	return nil
}

// ListMembers returns every rights holder on the account with identity
// and role set.
func (s *Service) ListMembers(ctx context.Context, caller authz.Principal, accountID int64) ([]Member, error) {
	actx := authz.Context{Caller: caller, AccountID: accountID}
	if caller.ID != 0 {
		callerRights, err := s.repo.Get(ctx, accountID, caller.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		actx.CallerAccountRoles = callerRights.Roles
	}
	if err := s.guard.Authorize(OpListMembers, actx); err != nil {
		return nil, err
	}
	return s.repo.ListByAccount(ctx, accountID)
}

// RolesOn returns the caller's own rights across accounts.
func (s *Service) RolesOn(ctx context.Context, userID int64) ([]AccountRights, error) {
	return s.repo.ListByUser(ctx, userID)
}

// buildPeerContext loads caller and target rights inside the transaction
// so the authorization decision and the mutation see the same state.
// Absent rows become empty role sets: missing context denies at
// evaluation, it never errors.
func (s *Service) buildPeerContext(ctx context.Context, tx TxRepository, caller authz.Principal, accountID, targetUserID int64) (AccountRights, authz.Context, error) {
	actx := authz.Context{Caller: caller, AccountID: accountID, TargetID: targetUserID}

	if caller.ID != 0 {
		callerRights, err := tx.Get(ctx, accountID, caller.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return AccountRights{}, authz.Context{}, err
		}
		actx.CallerAccountRoles = callerRights.Roles
	}

	target, err := tx.Get(ctx, accountID, targetUserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return AccountRights{}, authz.Context{}, err
	}
	actx.TargetAccountRoles = target.Roles
	return target, actx, nil
}

func roleNames(roles []authz.Role) []string {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = role.String()
	}
	return names
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, accountID, userID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["user_id"] = userID
	e := audit.Entry{ActorID: actorID, Action: action, Entity: "account", EntityID: accountID, Meta: meta}
	if err := s.audit.Record(ctx, e); err != nil && s.logger != nil {
		s.logger.Error("record audit entry", slog.String("action", action), slog.Any("error", err))
	}
}

// notify queues a courtesy email to the affected user. Failures are
// logged and dropped; the rights change already committed.
func (s *Service) notify(ctx context.Context, userID int64, subject, body string) {
	if s.queue == nil {
		return
	}
	if err := s.queue.EnqueueUserEmail(ctx, userID, subject, body); err != nil && s.logger != nil {
		s.logger.Warn("enqueue notification", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}
