package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexushq/nexus/internal/authz"
	"github.com/nexushq/nexus/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for users. It also
// implements authz.UserDirectory for the permission resolver.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns all users ordered by ID.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, name, role, tenant_id, is_active, created_at, updated_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser fetches a user by ID.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, name, role, tenant_id, is_active, created_at, updated_at FROM users WHERE id = $1`, id)
	if err != nil {
		return User{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return User{}, err
		}
		return User{}, authz.ErrUserNotFound
	}
	return scanUser(rows)
}

// GetIdentity implements authz.UserDirectory.
func (r *Repository) GetIdentity(ctx context.Context, userID int64) (authz.Identity, error) {
	var ident authz.Identity
	var tenant pgtype.Int8
	err := r.pool.QueryRow(ctx,
		`SELECT id, role, tenant_id, is_active FROM users WHERE id = $1`, userID,
	).Scan(&ident.UserID, &ident.Role, &tenant, &ident.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return authz.Identity{}, authz.ErrUserNotFound
		}
		return authz.Identity{}, fmt.Errorf("%w: %v", authz.ErrStoreUnavailable, err)
	}
	if tenant.Valid {
		v := tenant.Int64
		ident.TenantID = &v
	}
	return ident, nil
}

// UpdateRole implements authz.UserDirectory. The previous role is read and
// the row updated inside one transaction so the audit entry always carries
// the role that was actually replaced.
func (r *Repository) UpdateRole(ctx context.Context, userID int64, role string) (string, error) {
	var oldRole string
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT role FROM users WHERE id = $1 FOR UPDATE`, userID,
		).Scan(&oldRole); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return authz.ErrUserNotFound
			}
			return fmt.Errorf("%w: %v", authz.ErrStoreUnavailable, err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, userID, role); err != nil {
			return fmt.Errorf("%w: %v", authz.ErrStoreUnavailable, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return oldRole, nil
}

// DeleteUser removes a user and its grant rows in one transaction.
func (r *Repository) DeleteUser(ctx context.Context, userID int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM user_permissions WHERE user_id = $1`, userID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return authz.ErrUserNotFound
		}
		return nil
	})
}

func scanUser(rows pgx.Rows) (User, error) {
	var user User
	var tenant pgtype.Int8
	if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.Role, &tenant, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	if tenant.Valid {
		v := tenant.Int64
		user.TenantID = &v
	}
	return user, nil
}

var _ authz.UserDirectory = (*Repository)(nil)
