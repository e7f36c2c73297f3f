package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Sink appends entries to the audit trail.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// PGSink writes audit entries into the audit_logs table.
type PGSink struct {
	pool *pgxpool.Pool
}

// NewPGSink returns a PGSink backed by the pool.
func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

// Append persists the entry. A zero OccurredAt defaults to now.
func (s *PGSink) Append(ctx context.Context, entry Entry) error {
	if s == nil || s.pool == nil {
		return errors.New("audit: sink not initialised")
	}
	if entry.Action == "" {
		return errors.New("audit: entry requires an action")
	}
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return err
	}
	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, details, source_addr, occurred_at) VALUES ($1, $2, $3, $4, $5)`,
		entry.ActorID, string(entry.Action), details, entry.SourceAddr, occurredAt)
	return err
}

var _ Sink = (*PGSink)(nil)
