package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexushq/nexus/internal/authz"
)

// GrantOrphanScanJob looks for stored grants whose permission key has been
// removed from the catalog. Such rows are harmless at resolution time, they
// never match a lookup, but they indicate catalog drift after a deploy and
// should be cleaned up by an operator.
type GrantOrphanScanJob struct {
	pool    *pgxpool.Pool
	catalog *authz.Catalog
	logger  *slog.Logger
}

// NewGrantOrphanScanJob constructs the scan job.
func NewGrantOrphanScanJob(pool *pgxpool.Pool, catalog *authz.Catalog, logger *slog.Logger) *GrantOrphanScanJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &GrantOrphanScanJob{pool: pool, catalog: catalog, logger: logger}
}

// Handle processes TaskGrantOrphanScan tasks.
func (j *GrantOrphanScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	rows, err := j.pool.Query(ctx,
		`SELECT permission, COUNT(*) FROM user_permissions GROUP BY permission`)
	if err != nil {
		return err
	}
	defer rows.Close()

	orphans := 0
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		if _, err := j.catalog.LookupPermission(key); err != nil {
			orphans++
			j.logger.Warn("orphaned grant rows",
				slog.String("permission", key),
				slog.Int64("rows", count))
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if orphans == 0 {
		j.logger.Info("grant orphan scan clean")
	}
	return nil
}
