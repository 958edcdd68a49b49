package rights

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratus-cloud/stratus/internal/authz"
	"github.com/stratus-cloud/stratus/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for account rights.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations available inside a transaction.
// Grant and revoke are read-modify-write units; everything they touch
// goes through here.
type TxRepository interface {
	Get(ctx context.Context, accountID, userID int64) (AccountRights, error)
	Save(ctx context.Context, r AccountRights) error
	Delete(ctx context.Context, accountID, userID int64) (bool, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func rolesToNames(roles []authz.Role) []string {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = role.String()
	}
	return names
}

func namesToRoles(names []string) ([]authz.Role, error) {
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

func scanRights(row pgx.Row) (AccountRights, error) {
	var r AccountRights
	var names []string
	err := row.Scan(&r.AccountID, &r.UserID, &names, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return AccountRights{}, ErrNotFound
	}
	if err != nil {
		return AccountRights{}, err
	}
	r.Roles, err = namesToRoles(names)
	if err != nil {
		return AccountRights{}, err
	}
	return r, nil
}

const rightsQuery = `SELECT account_id, user_id, roles, created_at, updated_at FROM account_rights`

// Get returns the rights row for the pair.
func (r *Repository) Get(ctx context.Context, accountID, userID int64) (AccountRights, error) {
	row := r.pool.QueryRow(ctx, rightsQuery+` WHERE account_id = $1 AND user_id = $2`, accountID, userID)
	return scanRights(row)
}

// ListByAccount returns all rights on an account joined with each
// holder's identity.
func (r *Repository) ListByAccount(ctx context.Context, accountID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ar.account_id, ar.user_id, ar.roles, ar.created_at, ar.updated_at,
		        u.username, u.email
		 FROM account_rights ar
		 JOIN users u ON u.id = ar.user_id
		 WHERE ar.account_id = $1
		 ORDER BY u.username`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		var names []string
		if err := rows.Scan(&m.AccountID, &m.UserID, &names, &m.CreatedAt, &m.UpdatedAt,
			&m.Username, &m.Email); err != nil {
			return nil, err
		}
		if m.Roles, err = namesToRoles(names); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListByUser returns all rights a user holds across accounts.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]AccountRights, error) {
	rows, err := r.pool.Query(ctx, rightsQuery+` WHERE user_id = $1 ORDER BY account_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []AccountRights
	for rows.Next() {
		var ar AccountRights
		var names []string
		if err := rows.Scan(&ar.AccountID, &ar.UserID, &names, &ar.CreatedAt, &ar.UpdatedAt); err != nil {
			return nil, err
		}
		if ar.Roles, err = namesToRoles(names); err != nil {
			return nil, err
		}
		all = append(all, ar)
	}
	return all, rows.Err()
}

// Tx operations

func (t *txRepo) Get(ctx context.Context, accountID, userID int64) (AccountRights, error) {
	row := t.tx.QueryRow(ctx, rightsQuery+` WHERE account_id = $1 AND user_id = $2`, accountID, userID)
	return scanRights(row)
}

func (t *txRepo) Save(ctx context.Context, r AccountRights) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO account_rights (account_id, user_id, roles)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (account_id, user_id)
		 DO UPDATE SET roles = EXCLUDED.roles, updated_at = NOW()`,
		r.AccountID, r.UserID, rolesToNames(r.Roles))
	return err
}

// Delete reports whether a row was actually removed so callers can
// skip side effects for revocations that were already no-ops.
func (t *txRepo) Delete(ctx context.Context, accountID, userID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM account_rights WHERE account_id = $1 AND user_id = $2`, accountID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
