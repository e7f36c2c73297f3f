package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit entries from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListEntries returns entries newest first, applying the optional filters.
func (r *PGRepository) ListEntries(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Entry, error) {
	query := `SELECT id, actor_id, action, details, source_addr, occurred_at FROM audit_logs WHERE 1=1`
	args := make([]any, 0, 6)
	idx := 1
	if !filters.From.IsZero() {
		query += fmt.Sprintf(" AND occurred_at >= $%d", idx)
		args = append(args, filters.From)
		idx++
	}
	if !filters.To.IsZero() {
		query += fmt.Sprintf(" AND occurred_at <= $%d", idx)
		args = append(args, filters.To)
		idx++
	}
	if filters.ActorID != 0 {
		query += fmt.Sprintf(" AND actor_id = $%d", idx)
		args = append(args, filters.ActorID)
		idx++
	}
	if filters.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", idx)
		args = append(args, string(filters.Action))
		idx++
	}
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var action string
		var details []byte
		if err := rows.Scan(&entry.ID, &entry.ActorID, &action, &details, &entry.SourceAddr, &entry.OccurredAt); err != nil {
			return nil, err
		}
		entry.Action = Action(action)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// CountByAction aggregates entry counts per action kind over the window.
func (r *PGRepository) CountByAction(ctx context.Context, from, to time.Time) (map[Action]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT action, COUNT(*) FROM audit_logs WHERE occurred_at >= $1 AND occurred_at < $2 GROUP BY action`,
		from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Action]int64)
	for rows.Next() {
		var action string
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		counts[Action(action)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

var _ Repository = (*PGRepository)(nil)
