package invitation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stratus-cloud/stratus/internal/authz"
	"github.com/stratus-cloud/stratus/internal/user"
)

type memoryLedger struct {
	invitations map[int64]Invitation
	rights      map[string][]authz.Role
	passwords   map[string]string
	nextID      int64
}

type memoryLedgerTx struct {
	repo *memoryLedger
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		invitations: make(map[int64]Invitation),
		rights:      make(map[string][]authz.Role),
		passwords:   make(map[string]string),
	}
}

func rightsKey(accountID, userID int64) string {
	return fmt.Sprintf("%d/%d", accountID, userID)
}

// WithTx mirrors the real transaction boundary: a closure error throws
// away every write made inside it.
func (r *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	invitations := make(map[int64]Invitation, len(r.invitations))
	for id, inv := range r.invitations {
		invitations[id] = inv
	}
	rights := make(map[string][]authz.Role, len(r.rights))
	for key, roles := range r.rights {
		rights[key] = append([]authz.Role(nil), roles...)
	}
	passwords := make(map[string]string, len(r.passwords))
	for email, hash := range r.passwords {
		passwords[email] = hash
	}

	if err := fn(ctx, &memoryLedgerTx{repo: r}); err != nil {
		r.invitations = invitations
		r.rights = rights
		r.passwords = passwords
		return err
	}
	return nil
}

func (r *memoryLedger) Create(ctx context.Context, inv Invitation) (Invitation, error) {
	for _, existing := range r.invitations {
		if existing.Code == inv.Code {
			return Invitation{}, ErrDuplicateCode
		}
	}
	r.nextID++
	inv.ID = r.nextID
	inv.CreatedAt = time.Now()
	r.invitations[inv.ID] = inv
	return inv, nil
}

func (r *memoryLedger) FindByID(ctx context.Context, id int64) (Invitation, error) {
	inv, ok := r.invitations[id]
	if !ok {
		return Invitation{}, ErrNotFound
	}
	return inv, nil
}

func (r *memoryLedger) ListByAccount(ctx context.Context, accountID int64) ([]Invitation, error) {
	var out []Invitation
	for _, inv := range r.invitations {
		if inv.AccountID != nil && *inv.AccountID == accountID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *memoryLedger) Delete(ctx context.Context, id int64) error {
	delete(r.invitations, id)
	return nil
}

func (r *memoryLedger) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var swept int64
	for id, inv := range r.invitations {
		if inv.Expired(now) {
			delete(r.invitations, id)
			swept++
		}
	}
	return swept, nil
}

func (r *memoryLedger) RolesOn(ctx context.Context, accountID, userID int64) ([]authz.Role, error) {
	return r.rights[rightsKey(accountID, userID)], nil
}

func (tx *memoryLedgerTx) FindByCode(ctx context.Context, code string) (Invitation, error) {
	for _, inv := range tx.repo.invitations {
		if inv.Code == code {
			return inv, nil
		}
	}
	return Invitation{}, ErrNotFound
}

func (tx *memoryLedgerTx) Delete(ctx context.Context, id int64) error {
	return tx.repo.Delete(ctx, id)
}

func (tx *memoryLedgerTx) MemberRoles(ctx context.Context, accountID, userID int64) ([]authz.Role, error) {
	return tx.repo.rights[rightsKey(accountID, userID)], nil
}

func (tx *memoryLedgerTx) SaveMemberRoles(ctx context.Context, accountID, userID int64, roles []authz.Role) error {
	tx.repo.rights[rightsKey(accountID, userID)] = roles
	return nil
}

func (tx *memoryLedgerTx) UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) error {
	tx.repo.passwords[email] = passwordHash
	return nil
}

type fakeNotifier struct {
	sent []string
	fail bool
}

func (n *fakeNotifier) Send(ctx context.Context, subject, body, to string) error {
	if n.fail {
		return errors.New("smtp unreachable")
	}
	n.sent = append(n.sent, to)
	return nil
}

type sequenceCodegen struct {
	codes []string
	calls int
}

func (g *sequenceCodegen) Generate(string) (string, error) {
	code := g.codes[g.calls%len(g.codes)]
	g.calls++
	return code, nil
}

type fakeUsers struct {
	byEmail map[string]user.User
}

func (f *fakeUsers) FindByEmail(ctx context.Context, email string) (user.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }
func (plainHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return user.ErrInvalidPassword
	}
	return nil
}

type ledgerFixture struct {
	repo     *memoryLedger
	notifier *fakeNotifier
	users    *fakeUsers
	svc      *Service
}

func newLedgerFixture(t *testing.T, codegen CodeGenerator) *ledgerFixture {
	t.Helper()
	repo := newMemoryLedger()
	notifier := &fakeNotifier{}
	users := &fakeUsers{byEmail: make(map[string]user.User)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := NewService(repo, codegen, notifier, repo, users, plainHasher{}, nil, logger, Config{
		BaseURL:  "https://stratus.test",
		Validity: 14 * 24 * time.Hour,
	})
	require.NoError(t, err)
	return &ledgerFixture{repo: repo, notifier: notifier, users: users, svc: svc}
}

func accountAdmin(repo *memoryLedger, accountID, userID int64) authz.Principal {
	repo.rights[rightsKey(accountID, userID)] = authz.ImpliedUnion([]authz.Role{authz.RoleAdmin})
	return authz.Principal{ID: userID, Name: "admin", Roles: []authz.Role{authz.RoleUser}}
}

func TestInviteThenRedeemGrantsMembership(t *testing.T) {
	fx := newLedgerFixture(t, RandomCodeGenerator{})
	admin := accountAdmin(fx.repo, 1, 10)

	inv, err := fx.svc.Invite(context.Background(), admin, 1, "newbie@example.org")
	require.NoError(t, err)
	require.NotEmpty(t, inv.Code)
	require.Equal(t, []string{"newbie@example.org"}, fx.notifier.sent)

	newbie := authz.Principal{ID: 30, Name: "newbie", Roles: []authz.Role{authz.RoleUser}}
	accountID, err := fx.svc.Redeem(context.Background(), newbie, inv.Code)
	require.NoError(t, err)
	require.Equal(t, int64(1), accountID)
	require.Equal(t, DefaultMemberRoles(), fx.repo.rights[rightsKey(1, 30)])
}

func TestRedeemIsSingleUse(t *testing.T) {
	fx := newLedgerFixture(t, RandomCodeGenerator{})
	admin := accountAdmin(fx.repo, 1, 10)

	inv, err := fx.svc.Invite(context.Background(), admin, 1, "newbie@example.org")
	require.NoError(t, err)

	first := authz.Principal{ID: 30, Roles: []authz.Role{authz.RoleUser}}
	_, err = fx.svc.Redeem(context.Background(), first, inv.Code)
	require.NoError(t, err)

	second := authz.Principal{ID: 31, Roles: []authz.Role{authz.RoleUser}}
	_, err = fx.svc.Redeem(context.Background(), second, inv.Code)
	require.ErrorIs(t, err, ErrInvalidCode)
	require.Empty(t, fx.repo.rights[rightsKey(1, 31)])
}

func TestRedeemKeepsExistingRights(t *testing.T) {
	fx := newLedgerFixture(t, RandomCodeGenerator{})
	admin := accountAdmin(fx.repo, 1, 10)
	fx.repo.rights[rightsKey(1, 30)] = authz.ImpliedUnion([]authz.Role{authz.RoleAdmin})

	inv, err := fx.svc.Invite(context.Background(), admin, 1, "existing@example.org")
	require.NoError(t, err)

	member := authz.Principal{ID: 30, Roles: []authz.Role{authz.RoleUser}}
	_, err = fx.svc.Redeem(context.Background(), member, inv.Code)
	require.NoError(t, err)
	require.Equal(t, authz.RoleAdmin, authz.MaxRole(fx.repo.rights[rightsKey(1, 30)]))
}

func TestRedeemExpiredCodeDeletesIt(t *testing.T) {
	fx := newLedgerFixture(t, RandomCodeGenerator{})
	admin := accountAdmin(fx.repo, 1, 10)

	inv, err := fx.svc.Invite(context.Background(), admin, 1, "slow@example.org")
	require.NoError(t, err)

	fx.svc.now = func() time.Time { return inv.ExpiresAt.Add(time.Minute) }
	member := authz.Principal{ID: 30, Roles: []authz.Role{authz.RoleUser}}
	_, err = fx.svc.Redeem(context.Background(), member, inv.Code)
	require.ErrorIs(t, err, ErrInvalidCode)

	_, err = fx.repo.FindByID(context.Background(), inv.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedeemDeniesAnonymous(t *testing.T) {
	fx := newLedgerFixture(t, RandomCodeGenerator{})
	_, err := fx.svc.Redeem(context.Background(), authz.Principal{}, "whatever")
	require.ErrorIs(t, err, authz.ErrDenied)
}

func TestInviteRollsBackWhenDeliveryFails(t *testing.T) {
	fx := newLedgerFixture(t, RandomCodeGenerator{})
	admin := accountAdmin(fx.repo, 1, 10)
	fx.notifier.fail = true

	_, err := fx.svc.Invite(context.Background(), admin, 1, "unlucky@example.org")
	require.ErrorIs(t, err, ErrUnsentInvitation)
	require.Empty(t, fx.repo.invitations)
}

func TestInviteRetriesCodeCollisions(t *testing.T) {
	fx := newLedgerFixture(t, &sequenceCodegen{codes: []string{"dup", "dup", "fresh"}})
	admin := accountAdmin(fx.repo, 1, 10)
	fx.repo.invitations[99] = Invitation{ID: 99, Code: "dup", ExpiresAt: time.Now().Add(time.Hour)}
	fx.repo.nextID = 99

	inv, err := fx.svc.Invite(context.Background(), admin, 1, "retry@example.org")
	require.NoError(t, err)
	require.Equal(t, "fresh", inv.Code)
}

func TestInviteExhaustsCollisionRetries(t *testing.T) {
	fx := newLedgerFixture(t, &sequenceCodegen{codes: []string{"dup"}})
	admin := accountAdmin(fx.repo, 1, 10)
	fx.repo.invitations[99] = Invitation{ID: 99, Code: "dup", ExpiresAt: time.Now().Add(time.Hour)}
	fx.repo.nextID = 99

	_, err := fx.svc.Invite(context.Background(), admin, 1, "unlucky@example.org")
	require.ErrorIs(t, err, ErrCodeExhausted)
}

func TestInviteDeniesNonAdminMember(t *testing.T) {
	fx := newLedgerFixture(t, RandomCodeGenerator{})
	fx.repo.rights[rightsKey(1, 20)] = []authz.Role{authz.RoleUser}
	member := authz.Principal{ID: 20, Roles: []authz.Role{authz.RoleUser}}

	_, err := fx.svc.Invite(context.Background(), member, 1, "someone@example.org")
	require.ErrorIs(t, err, authz.ErrDenied)
	require.Empty(t, fx.notifier.sent)
}

func TestListPendingSweepsExpired(t *testing.T) {
	fx := newLedgerFixture(t, RandomCodeGenerator{})
	admin := accountAdmin(fx.repo, 1, 10)

	live, err := fx.svc.Invite(context.Background(), admin, 1, "live@example.org")
	require.NoError(t, err)
	stale, err := fx.svc.Invite(context.Background(), admin, 1, "stale@example.org")
	require.NoError(t, err)

	fx.svc.now = func() time.Time { return time.Now() }
	stale.ExpiresAt = time.Now().Add(-time.Hour)
	fx.repo.invitations[stale.ID] = stale

	pending, err := fx.svc.ListPending(context.Background(), admin, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, live.ID, pending[0].ID)

	_, err = fx.repo.FindByID(context.Background(), stale.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeletePendingIsIdempotent(t *testing.T) {
	fx := newLedgerFixture(t, RandomCodeGenerator{})
	admin := accountAdmin(fx.repo, 1, 10)

	inv, err := fx.svc.Invite(context.Background(), admin, 1, "cancel@example.org")
	require.NoError(t, err)

	require.NoError(t, fx.svc.DeletePending(context.Background(), admin, 1, inv.ID))
	require.NoError(t, fx.svc.DeletePending(context.Background(), admin, 1, inv.ID))
}

func TestDeletePendingRejectsForeignAccount(t *testing.T) {
	fx := newLedgerFixture(t, RandomCodeGenerator{})
	adminOne := accountAdmin(fx.repo, 1, 10)
	adminTwo := accountAdmin(fx.repo, 2, 11)

	inv, err := fx.svc.Invite(context.Background(), adminOne, 1, "target@example.org")
	require.NoError(t, err)

	err = fx.svc.DeletePending(context.Background(), adminTwo, 2, inv.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSweepExpired(t *testing.T) {
	fx := newLedgerFixture(t, RandomCodeGenerator{})
	admin := accountAdmin(fx.repo, 1, 10)

	inv, err := fx.svc.Invite(context.Background(), admin, 1, "old@example.org")
	require.NoError(t, err)
	inv.ExpiresAt = time.Now().Add(-time.Hour)
	fx.repo.invitations[inv.ID] = inv
	_, err = fx.svc.Invite(context.Background(), admin, 1, "fresh@example.org")
	require.NoError(t, err)

	swept, err := fx.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), swept)
	require.Len(t, fx.repo.invitations, 1)
}

func TestPasswordResetRoundTrip(t *testing.T) {
	fx := newLedgerFixture(t, RandomCodeGenerator{})
	fx.users.byEmail["alice@example.org"] = user.User{ID: 5, Email: "alice@example.org"}

	require.NoError(t, fx.svc.RequestPasswordReset(context.Background(), "alice@example.org"))
	require.Equal(t, []string{"alice@example.org"}, fx.notifier.sent)
	require.Len(t, fx.repo.invitations, 1)

	var code string
	for _, inv := range fx.repo.invitations {
		require.Nil(t, inv.AccountID)
		code = inv.Code
	}

	require.NoError(t, fx.svc.RedeemPasswordReset(context.Background(), code, "brand-new-pass"))
	require.Equal(t, "hashed:brand-new-pass", fx.repo.passwords["alice@example.org"])
	require.Empty(t, fx.repo.invitations)

	err := fx.svc.RedeemPasswordReset(context.Background(), code, "brand-new-pass")
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestExpiredResetCodeConsumedDespiteFailure(t *testing.T) {
	fx := newLedgerFixture(t, RandomCodeGenerator{})
	fx.users.byEmail["alice@example.org"] = user.User{ID: 5, Email: "alice@example.org"}

	require.NoError(t, fx.svc.RequestPasswordReset(context.Background(), "alice@example.org"))
	var code string
	for _, inv := range fx.repo.invitations {
		fx.svc.now = func() time.Time { return inv.ExpiresAt.Add(time.Minute) }
		code = inv.Code
	}

	err := fx.svc.RedeemPasswordReset(context.Background(), code, "brand-new-pass")
	require.ErrorIs(t, err, ErrInvalidCode)
	require.Empty(t, fx.repo.invitations, "stale reset code should be purged even though redemption fails")
	require.Empty(t, fx.repo.passwords)
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	fx := newLedgerFixture(t, RandomCodeGenerator{})
	err := fx.svc.RequestPasswordReset(context.Background(), "ghost@example.org")
	require.ErrorIs(t, err, user.ErrNotFound)
	require.Empty(t, fx.repo.invitations)
}

func TestResetCodeCannotJoinAccount(t *testing.T) {
	fx := newLedgerFixture(t, RandomCodeGenerator{})
	fx.users.byEmail["alice@example.org"] = user.User{ID: 5, Email: "alice@example.org"}
	require.NoError(t, fx.svc.RequestPasswordReset(context.Background(), "alice@example.org"))

	var code string
	for _, inv := range fx.repo.invitations {
		code = inv.Code
	}
	member := authz.Principal{ID: 5, Roles: []authz.Role{authz.RoleUser}}
	_, err := fx.svc.Redeem(context.Background(), member, code)
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestMembershipCodeCannotResetPassword(t *testing.T) {
	fx := newLedgerFixture(t, RandomCodeGenerator{})
	admin := accountAdmin(fx.repo, 1, 10)
	inv, err := fx.svc.Invite(context.Background(), admin, 1, "newbie@example.org")
	require.NoError(t, err)

	err = fx.svc.RedeemPasswordReset(context.Background(), inv.Code, "brand-new-pass")
	require.ErrorIs(t, err, ErrInvalidCode)
}
