package invitation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratus-cloud/stratus/internal/authz"
	"github.com/stratus-cloud/stratus/internal/platform/db"
)

// Repository persists invitations in PostgreSQL. Redemption flows span
// invitations, account_rights, and users rows, so the transactional
// surface covers all three.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the transactional surface used by redemption flows.
type TxRepository interface {
	FindByCode(ctx context.Context, code string) (Invitation, error)
	Delete(ctx context.Context, id int64) error
	MemberRoles(ctx context.Context, accountID, userID int64) ([]authz.Role, error)
	SaveMemberRoles(ctx context.Context, accountID, userID int64, roles []authz.Role) error
	UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const invitationColumns = "id, account_id, email, issued_by, code, created_at, expires_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row rowScanner) (Invitation, error) {
	var inv Invitation
	err := row.Scan(&inv.ID, &inv.AccountID, &inv.Email, &inv.IssuedBy, &inv.Code, &inv.CreatedAt, &inv.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invitation{}, ErrNotFound
	}
	if err != nil {
		return Invitation{}, fmt.Errorf("scan invitation: %w", err)
	}
	return inv, nil
}

// Create inserts the invitation and returns it with identifiers and
// timestamps filled in. A code collision returns ErrDuplicateCode.
func (r *Repository) Create(ctx context.Context, inv Invitation) (Invitation, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO invitations (account_id, email, issued_by, code, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+invitationColumns,
		inv.AccountID, inv.Email, inv.IssuedBy, inv.Code, inv.ExpiresAt)
	created, err := scanInvitation(row)
	if db.IsUniqueViolation(err, "invitations_code_key") {
		return Invitation{}, ErrDuplicateCode
	}
	if err != nil {
		return Invitation{}, err
	}
	return created, nil
}

func (r *Repository) FindByID(ctx context.Context, id int64) (Invitation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id)
	return scanInvitation(row)
}

func (r *Repository) ListByAccount(ctx context.Context, accountID int64) ([]Invitation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE account_id = $1 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// Delete removes the invitation. Deleting an absent row is a no-op.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM invitations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	return nil
}

// DeleteExpired removes every invitation past its expiry and reports how
// many rows were swept.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM invitations WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep invitations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) FindByCode(ctx context.Context, code string) (Invitation, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE code = $1 FOR UPDATE`, code)
	return scanInvitation(row)
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM invitations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	return nil
}

func (t *txRepo) MemberRoles(ctx context.Context, accountID, userID int64) ([]authz.Role, error) {
	var names []string
	err := t.tx.QueryRow(ctx,
		`SELECT roles FROM account_rights WHERE account_id = $1 AND user_id = $2`,
		accountID, userID).Scan(&names)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("member roles: %w", err)
	}
	roles := make([]authz.Role, 0, len(names))
	for _, name := range names {
		role, err := authz.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("member roles: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func (t *txRepo) SaveMemberRoles(ctx context.Context, accountID, userID int64, roles []authz.Role) error {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = role.String()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO account_rights (account_id, user_id, roles)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, user_id) DO UPDATE SET roles = EXCLUDED.roles, updated_at = NOW()`,
		accountID, userID, names)
	if err != nil {
		return fmt.Errorf("save member roles: %w", err)
	}
	return nil
}

func (t *txRepo) UpdatePasswordByEmail(ctx context.Context, email, passwordHash string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE email = $1`,
		email, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
