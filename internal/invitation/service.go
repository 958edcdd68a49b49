package invitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stratus-cloud/stratus/internal/audit"
	"github.com/stratus-cloud/stratus/internal/authz"
	"github.com/stratus-cloud/stratus/internal/notify"
	"github.com/stratus-cloud/stratus/internal/user"
)

// Operation names gated by the authorization guard.
const (
	OpInvite        = "user.invite"
	OpListPending   = "invitation.list_pending"
	OpDeletePending = "invitation.delete_pending"
	OpRedeem        = "invitation.redeem"
	OpRequestReset  = "password.request_reset"
	OpRedeemReset   = "password.redeem_reset"
)

// Rules is the declared rule table for invitation operations.
var Rules = map[string][]string{
	OpInvite:        {"role:ROLE_ADMIN,scope:SELF_ACCT", "role:ROLE_ROOT_ADMIN,scope:ANY"},
	OpListPending:   {"role:ROLE_ADMIN,scope:SELF_ACCT", "role:ROLE_ROOT_ADMIN,scope:ANY"},
	OpDeletePending: {"role:ROLE_ADMIN,scope:SELF_ACCT", "role:ROLE_ROOT_ADMIN,scope:ANY"},
	OpRedeem:        {"role:ROLE_USER,scope:ANY"},
	OpRequestReset:  {"role:ROLE_ANONYMOUS,scope:ANY"},
	OpRedeemReset:   {"role:ROLE_ANONYMOUS,scope:ANY"},
}

// DefaultMemberRoles is the role set granted on first redemption.
func DefaultMemberRoles() []authz.Role {
	return authz.ImpliedUnion([]authz.Role{authz.RoleUser})
}

// RepositoryPort defines data access for the invitation ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Create(ctx context.Context, inv Invitation) (Invitation, error)
	FindByID(ctx context.Context, id int64) (Invitation, error)
	ListByAccount(ctx context.Context, accountID int64) ([]Invitation, error)
	Delete(ctx context.Context, id int64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RightsPort resolves the caller's roles on an account for guard context.
type RightsPort interface {
	RolesOn(ctx context.Context, accountID, userID int64) ([]authz.Role, error)
}

// UsersPort resolves addressees for password-reset invitations.
type UsersPort interface {
	FindByEmail(ctx context.Context, email string) (user.User, error)
}

// AuditPort records privileged mutations.
type AuditPort interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Config carries link construction and validity settings.
type Config struct {
	BaseURL  string
	Validity time.Duration
}

const codeCollisionRetries = 3

// Service implements the invitation ledger: issuance, pending listing
// with lazy expiry, single-use redemption, and password resets.
type Service struct {
	repo     RepositoryPort
	codegen  CodeGenerator
	notifier notify.Notifier
	rights   RightsPort
	users    UsersPort
	hasher   user.Hasher
	guard    *authz.Guard
	audit    AuditPort
	events   func(event string)
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

func NewService(repo RepositoryPort, codegen CodeGenerator, notifier notify.Notifier, rights RightsPort, users UsersPort, hasher user.Hasher, audit AuditPort, logger *slog.Logger, cfg Config) (*Service, error) {
	guard, err := authz.NewGuard(Rules)
	if err != nil {
		return nil, err
	}
	if cfg.Validity <= 0 {
		cfg.Validity = 14 * 24 * time.Hour
	}
	return &Service{
		repo:     repo,
		codegen:  codegen,
		notifier: notifier,
		rights:   rights,
		users:    users,
		hasher:   hasher,
		guard:    guard,
		audit:    audit,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// Guard exposes the service guard for decision metrics wiring.
func (s *Service) Guard() *authz.Guard { return s.guard }

// ObserveEvents registers a lifecycle event sink (issued, redeemed,
// expired, cancelled, reset).
func (s *Service) ObserveEvents(fn func(event string)) { s.events = fn }

// Invite mints a single-use code for the address, persists it, and mails
// it. The write is rolled back when delivery fails so an unsent
// invitation never lingers.
func (s *Service) Invite(ctx context.Context, caller authz.Principal, accountID int64, email string) (Invitation, error) {
	if err := s.authorizeOnAccount(ctx, OpInvite, caller, accountID); err != nil {
		return Invitation{}, err
	}

	var created Invitation
	for attempt := 0; ; attempt++ {
		code, err := s.codegen.Generate(email)
		if err != nil {
			return Invitation{}, err
		}
		created, err = s.repo.Create(ctx, Invitation{
			AccountID: &accountID,
			Email:     email,
			IssuedBy:  caller.ID,
			Code:      code,
			ExpiresAt: s.now().Add(s.cfg.Validity),
		})
		if errors.Is(err, ErrDuplicateCode) {
			if attempt+1 >= codeCollisionRetries {
				return Invitation{}, ErrCodeExhausted
			}
			continue
		}
		if err != nil {
			return Invitation{}, err
		}
		break
	}

	body := fmt.Sprintf("You have been invited to join an account.\n\nAccept the invitation:\n%s/invitations/redeem?code=%s\n\nThe code expires on %s.",
		s.cfg.BaseURL, created.Code, created.ExpiresAt.Format(time.RFC1123))
	if err := s.notifier.Send(ctx, "Account invitation", body, email); err != nil {
		if delErr := s.repo.Delete(ctx, created.ID); delErr != nil {
			s.logger.Error("roll back unsent invitation",
				slog.Int64("invitation_id", created.ID), slog.Any("error", delErr))
		}
		return Invitation{}, fmt.Errorf("%w: %v", ErrUnsentInvitation, err)
	}

	s.emit("issued")
	s.recordAudit(ctx, caller.ID, "invitation.issued", created.ID,
		map[string]any{"account_id": accountID, "email": email})
	return created, nil
}

// ListPending returns the live invitations for the account. Expired rows
// encountered during the call are deleted rather than returned.
func (s *Service) ListPending(ctx context.Context, caller authz.Principal, accountID int64) ([]Invitation, error) {
	if err := s.authorizeOnAccount(ctx, OpListPending, caller, accountID); err != nil {
		return nil, err
	}

	all, err := s.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	pending := all[:0]
	for _, inv := range all {
		if inv.Expired(now) {
			if err := s.repo.Delete(ctx, inv.ID); err != nil {
				return nil, err
			}
			s.emit("expired")
			continue
		}
		pending = append(pending, inv)
	}
	return pending, nil
}

// Redeem exchanges a code for membership of the inviting account. The
// lookup, the rights grant, and the code deletion commit atomically, so
// a code is spendable at most once. Returns the account joined.
func (s *Service) Redeem(ctx context.Context, caller authz.Principal, code string) (int64, error) {
	if err := s.guard.Authorize(OpRedeem, authz.Context{Caller: caller}); err != nil {
		return 0, err
	}

	var accountID int64
	var expired bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.FindByCode(ctx, code)
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCode
		}
		if err != nil {
			return err
		}
		if inv.AccountID == nil {
			return ErrInvalidCode
		}
		if inv.Expired(s.now()) {
			// Returning an error here would roll the delete back, so
			// commit it and report the stale code afterwards.
			expired = true
			return tx.Delete(ctx, inv.ID)
		}

		accountID = *inv.AccountID
		existing, err := tx.MemberRoles(ctx, accountID, caller.ID)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			if err := tx.SaveMemberRoles(ctx, accountID, caller.ID, DefaultMemberRoles()); err != nil {
				return err
			}
		}
		return tx.Delete(ctx, inv.ID)
	})
	if err != nil {
		return 0, err
	}
	if expired {
		s.emit("expired")
		return 0, ErrInvalidCode
	}

	s.emit("redeemed")
	s.recordAudit(ctx, caller.ID, "invitation.redeemed", accountID,
		map[string]any{"account_id": accountID})
	return accountID, nil
}

// DeletePending cancels an invitation. Cancelling one that is already
// gone is a no-op.
func (s *Service) DeletePending(ctx context.Context, caller authz.Principal, accountID, invitationID int64) error {
	if err := s.authorizeOnAccount(ctx, OpDeletePending, caller, accountID); err != nil {
		return err
	}

	inv, err := s.repo.FindByID(ctx, invitationID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if inv.AccountID == nil || *inv.AccountID != accountID {
		return ErrNotFound
	}
	if err := s.repo.Delete(ctx, invitationID); err != nil {
		return err
	}

	s.emit("cancelled")
	s.recordAudit(ctx, caller.ID, "invitation.cancelled", invitationID,
		map[string]any{"account_id": accountID})
	return nil
}

// SweepExpired bulk-deletes expired invitations. Run periodically from
// the worker.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	swept, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for i := int64(0); i < swept; i++ {
		s.emit("expired")
	}
	return swept, nil
}

// RequestPasswordReset issues an account-less invitation and mails a
// reset link. The ledger write rolls back when delivery fails.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if err := s.guard.Authorize(OpRequestReset, authz.Context{}); err != nil {
		return err
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	code, err := s.codegen.Generate(email)
	if err != nil {
		return err
	}
	created, err := s.repo.Create(ctx, Invitation{
		Email:     u.Email,
		Code:      code,
		ExpiresAt: s.now().Add(s.cfg.Validity),
	})
	if err != nil {
		return err
	}

	body := fmt.Sprintf("A password reset was requested for this address.\n\nChoose a new password:\n%s/password/reset?code=%s\n\nThe link expires on %s.",
		s.cfg.BaseURL, created.Code, created.ExpiresAt.Format(time.RFC1123))
	if err := s.notifier.Send(ctx, "Password reset", body, u.Email); err != nil {
		if delErr := s.repo.Delete(ctx, created.ID); delErr != nil {
			s.logger.Error("roll back unsent reset",
				slog.Int64("invitation_id", created.ID), slog.Any("error", delErr))
		}
		return fmt.Errorf("%w: %v", ErrUnsentInvitation, err)
	}

	s.emit("reset_requested")
	return nil
}

// RedeemPasswordReset validates a reset code and rewrites the user's
// password hash, consuming the code in the same transaction.
func (s *Service) RedeemPasswordReset(ctx context.Context, code, newPassword string) error {
	if err := s.guard.Authorize(OpRedeemReset, authz.Context{}); err != nil {
		return err
	}
	if len(newPassword) < 8 {
		return user.ErrInvalidPassword
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	var expired bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.FindByCode(ctx, code)
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCode
		}
		if err != nil {
			return err
		}
		if inv.AccountID != nil {
			return ErrInvalidCode
		}
		if inv.Expired(s.now()) {
			expired = true
			return tx.Delete(ctx, inv.ID)
		}
		if err := tx.UpdatePasswordByEmail(ctx, inv.Email, hash); err != nil {
			return err
		}
		return tx.Delete(ctx, inv.ID)
	})
	if err != nil {
		return err
	}
	if expired {
		s.emit("expired")
		return ErrInvalidCode
	}

	s.emit("reset")
	return nil
}

// authorizeOnAccount resolves the caller's account roles and runs the
// guard for an account-scoped operation.
func (s *Service) authorizeOnAccount(ctx context.Context, operation string, caller authz.Principal, accountID int64) error {
	actx := authz.Context{Caller: caller, AccountID: accountID}
	if caller.ID != 0 && s.rights != nil {
		roles, err := s.rights.RolesOn(ctx, accountID, caller.ID)
		if err != nil {
			return err
		}
		actx.CallerAccountRoles = roles
	}
	return s.guard.Authorize(operation, actx)
}

func (s *Service) emit(event string) {
	if s.events != nil {
		s.events(event)
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	e := audit.Entry{ActorID: actorID, Action: action, Entity: "invitation", EntityID: entityID, Meta: meta}
	if err := s.audit.Record(ctx, e); err != nil && s.logger != nil {
		s.logger.Error("record audit entry", slog.String("action", action), slog.Any("error", err))
	}
}
