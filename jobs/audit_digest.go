package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nexushq/nexus/internal/audit"
)

const defaultDigestWindow = 24 * time.Hour

// AuditDigestJob logs a per-action summary of recent audit activity so
// operators can spot denial spikes without querying the database.
type AuditDigestJob struct {
	service *audit.Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewAuditDigestJob constructs the digest job.
func NewAuditDigestJob(service *audit.Service, logger *slog.Logger) *AuditDigestJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditDigestJob{service: service, logger: logger, now: time.Now}
}

// Handle processes TaskAuditDigest tasks.
func (j *AuditDigestJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AuditDigestPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	window := defaultDigestWindow
	if payload.WindowHours > 0 {
		window = time.Duration(payload.WindowHours) * time.Hour
	}

	to := j.now().UTC()
	from := to.Add(-window)
	counts, err := j.service.Digest(ctx, from, to)
	if err != nil {
		return err
	}

	attrs := []any{
		slog.Time("from", from),
		slog.Time("to", to),
	}
	var total int64
	for action, count := range counts {
		attrs = append(attrs, slog.Int64(string(action), count))
		total += count
	}
	attrs = append(attrs, slog.Int64("total", total))
	j.logger.Info("audit digest", attrs...)
	return nil
}
