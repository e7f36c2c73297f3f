package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PGGrantStore implements GrantStore on PostgreSQL. The user_permissions
// table carries a uniqueness constraint on (user_id, permission, tenant_id)
// so a concurrent duplicate grant surfaces as ErrGrantConflict instead of a
// silent double row.
type PGGrantStore struct {
	pool *pgxpool.Pool
}

// NewGrantStore constructs a PGGrantStore.
func NewGrantStore(pool *pgxpool.Pool) *PGGrantStore {
	return &PGGrantStore{pool: pool}
}

// ListGrants returns rows scoped to tenantID plus global (NULL tenant) rows.
// With a nil tenantID only global rows match; tenant-scoped grants never
// count toward a global check.
func (s *PGGrantStore) ListGrants(ctx context.Context, userID int64, tenantID *int64) ([]Grant, error) {
	var query string
	args := []any{userID}
	if tenantID != nil {
		query = `SELECT id, user_id, permission, tenant_id, granted_by, created_at
			FROM user_permissions WHERE user_id = $1 AND (tenant_id = $2 OR tenant_id IS NULL)`
		args = append(args, *tenantID)
	} else {
		query = `SELECT id, user_id, permission, tenant_id, granted_by, created_at
			FROM user_permissions WHERE user_id = $1 AND tenant_id IS NULL`
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var g Grant
		var tenant pgtype.Int8
		var createdAt pgtype.Timestamptz
		if err := rows.Scan(&g.ID, &g.UserID, &g.Permission, &tenant, &g.GrantedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if tenant.Valid {
			v := tenant.Int64
			g.TenantID = &v
		}
		if createdAt.Valid {
			g.CreatedAt = createdAt.Time
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return grants, nil
}

// InsertGrant stores a grant row, mapping unique violations to
// ErrGrantConflict.
func (s *PGGrantStore) InsertGrant(ctx context.Context, grant Grant) (int64, error) {
	createdAt := grant.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO user_permissions (user_id, permission, tenant_id, granted_by, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		grant.UserID, grant.Permission, optionalInt8(grant.TenantID), grant.GrantedBy, createdAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrGrantConflict
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return id, nil
}

// DeleteGrant removes matching override rows. With a non-nil tenantID both
// the tenant-scoped row and a global row match, mirroring the visibility
// rule used at resolution time.
func (s *PGGrantStore) DeleteGrant(ctx context.Context, userID int64, permission string, tenantID *int64) (int64, error) {
	var tag pgconn.CommandTag
	var err error
	if tenantID != nil {
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM user_permissions WHERE user_id = $1 AND permission = $2 AND (tenant_id = $3 OR tenant_id IS NULL)`,
			userID, permission, *tenantID)
	} else {
		tag, err = s.pool.Exec(ctx,
			`DELETE FROM user_permissions WHERE user_id = $1 AND permission = $2 AND tenant_id IS NULL`,
			userID, permission)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

func optionalInt8(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

var _ GrantStore = (*PGGrantStore)(nil)
