package account

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratus-cloud/stratus/internal/authz"
	"github.com/stratus-cloud/stratus/internal/platform/db"
)

const accountColumns = `id, name, subdomain, org_name, department, status, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.Subdomain, &a.OrgName, &a.Department,
		&a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// FindByID returns the account with the given id.
func (r *Repository) FindByID(ctx context.Context, id int64) (Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// FindBySubdomain returns the account with the given subdomain.
func (r *Repository) FindBySubdomain(ctx context.Context, subdomain string) (Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE subdomain = $1`, subdomain)
	return scanAccount(row)
}

// RolesOn returns the caller's current roles on an account, empty when no
// relationship exists.
func (r *Repository) RolesOn(ctx context.Context, accountID, userID int64) ([]authz.Role, error) {
	var names []string
	err := r.pool.QueryRow(ctx,
		`SELECT roles FROM account_rights WHERE account_id = $1 AND user_id = $2`,
		accountID, userID).Scan(&names)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	roles := make([]authz.Role, 0, len(names))
	for _, name := range names {
		role, err := authz.ParseRole(name)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// CreateWithAdmin inserts the account and grants the creator their initial
// rights in one transaction.
func (r *Repository) CreateWithAdmin(ctx context.Context, a *Account, adminUserID int64, roles []authz.Role) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO accounts (name, subdomain, org_name, department, status)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, created_at, updated_at`,
			a.Name, a.Subdomain, a.OrgName, a.Department, a.Status)
		if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			if db.IsUniqueViolation(err, "accounts_subdomain_key") {
				return ErrSubdomainTaken
			}
			return err
		}

		names := make([]string, len(roles))
		for i, role := range roles {
			names[i] = role.String()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO account_rights (account_id, user_id, roles) VALUES ($1, $2, $3)`,
			a.ID, adminUserID, names)
		return err
	})
}

// UpdateInfo stores the account's descriptive fields.
func (r *Repository) UpdateInfo(ctx context.Context, id int64, name, orgName, department string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET name = $2, org_name = $3, department = $4, updated_at = NOW()
		 WHERE id = $1`, id, name, orgName, department)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus stores the account's lifecycle status.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
