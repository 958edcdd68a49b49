package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratus-cloud/stratus/internal/authz"
)

type memoryAccountRepo struct {
	accounts map[int64]Account
	rights   map[[2]int64][]authz.Role
	nextID   int64
}

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{
		accounts: make(map[int64]Account),
		rights:   make(map[[2]int64][]authz.Role),
	}
}

func (r *memoryAccountRepo) FindByID(ctx context.Context, id int64) (Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (r *memoryAccountRepo) FindBySubdomain(ctx context.Context, subdomain string) (Account, error) {
	for _, a := range r.accounts {
		if a.Subdomain == subdomain {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (r *memoryAccountRepo) RolesOn(ctx context.Context, accountID, userID int64) ([]authz.Role, error) {
	return r.rights[[2]int64{accountID, userID}], nil
}

func (r *memoryAccountRepo) CreateWithAdmin(ctx context.Context, a *Account, adminUserID int64, roles []authz.Role) error {
	if _, err := r.FindBySubdomain(ctx, a.Subdomain); err == nil {
		return ErrSubdomainTaken
	}
	r.nextID++
	a.ID = r.nextID
	r.accounts[a.ID] = *a
	r.rights[[2]int64{a.ID, adminUserID}] = roles
	return nil
}

func (r *memoryAccountRepo) UpdateInfo(ctx context.Context, id int64, name, orgName, department string) error {
	a, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Name, a.OrgName, a.Department = name, orgName, department
	r.accounts[id] = a
	return nil
}

func (r *memoryAccountRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	a, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	r.accounts[id] = a
	return nil
}

func newAccountService(t *testing.T) (*Service, *memoryAccountRepo) {
	t.Helper()
	repo := newMemoryAccountRepo()
	svc, err := NewService(repo, nil, nil)
	require.NoError(t, err)
	return svc, repo
}

func member(id int64) authz.Principal {
	return authz.Principal{ID: id, Name: "member", Roles: []authz.Role{authz.RoleUser}}
}

func TestCreateGrantsCreatorAdminRights(t *testing.T) {
	svc, repo := newAccountService(t)

	a, err := svc.Create(context.Background(), member(10), CreateInput{Name: "Acme", Subdomain: "acme"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, a.Status)

	roles := repo.rights[[2]int64{a.ID, 10}]
	require.Equal(t, authz.RoleAdmin, authz.MaxRole(roles))
	require.Contains(t, roles, authz.RoleUser)
}

func TestCreateDeniesAnonymous(t *testing.T) {
	svc, _ := newAccountService(t)
	_, err := svc.Create(context.Background(), authz.Principal{}, CreateInput{Name: "Acme", Subdomain: "acme"})
	require.ErrorIs(t, err, authz.ErrDenied)
}

func TestCreateRejectsDuplicateSubdomain(t *testing.T) {
	svc, _ := newAccountService(t)
	_, err := svc.Create(context.Background(), member(10), CreateInput{Name: "Acme", Subdomain: "acme"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), member(11), CreateInput{Name: "Other", Subdomain: "acme"})
	require.ErrorIs(t, err, ErrSubdomainTaken)
}

func TestGetVisibleToMembersOnly(t *testing.T) {
	svc, _ := newAccountService(t)
	a, err := svc.Create(context.Background(), member(10), CreateInput{Name: "Acme", Subdomain: "acme"})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), member(10), a.ID)
	require.NoError(t, err)
	require.Equal(t, "Acme", got.Name)

	_, err = svc.Get(context.Background(), member(99), a.ID)
	require.ErrorIs(t, err, authz.ErrDenied)
}

func TestGetRootAdminSeesAnyAccount(t *testing.T) {
	svc, _ := newAccountService(t)
	a, err := svc.Create(context.Background(), member(10), CreateInput{Name: "Acme", Subdomain: "acme"})
	require.NoError(t, err)

	root := authz.Principal{ID: 1, Roles: []authz.Role{authz.RoleUser, authz.RoleRootAdmin}}
	_, err = svc.Get(context.Background(), root, a.ID)
	require.NoError(t, err)
}

func TestUpdateInfoRequiresAccountAdmin(t *testing.T) {
	svc, repo := newAccountService(t)
	a, err := svc.Create(context.Background(), member(10), CreateInput{Name: "Acme", Subdomain: "acme"})
	require.NoError(t, err)
	repo.rights[[2]int64{a.ID, 20}] = []authz.Role{authz.RoleUser}

	require.NoError(t, svc.UpdateInfo(context.Background(), member(10), a.ID, UpdateInfoInput{Name: "Acme Corp"}))
	require.Equal(t, "Acme Corp", repo.accounts[a.ID].Name)

	err = svc.UpdateInfo(context.Background(), member(20), a.ID, UpdateInfoInput{Name: "Hijack"})
	require.ErrorIs(t, err, authz.ErrDenied)
}

func TestSetStatusIsRootAdminOnly(t *testing.T) {
	svc, repo := newAccountService(t)
	a, err := svc.Create(context.Background(), member(10), CreateInput{Name: "Acme", Subdomain: "acme"})
	require.NoError(t, err)

	err = svc.SetStatus(context.Background(), member(10), a.ID, StatusActive)
	require.ErrorIs(t, err, authz.ErrDenied)

	root := authz.Principal{ID: 1, Roles: []authz.Role{authz.RoleUser, authz.RoleRootAdmin}}
	require.NoError(t, svc.SetStatus(context.Background(), root, a.ID, StatusActive))
	require.Equal(t, StatusActive, repo.accounts[a.ID].Status)
}
