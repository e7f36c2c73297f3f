package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditDigest summarises audit activity over a trailing window.
	TaskAuditDigest = "audit:digest"
	// TaskGrantOrphanScan flags stored grants whose permission key is no
	// longer part of the catalog.
	TaskGrantOrphanScan = "grants:orphan_scan"
)

// AuditDigestPayload configures the digest window.
type AuditDigestPayload struct {
	WindowHours int `json:"window_hours"`
}

// NewAuditDigestTask constructs an Asynq task for the audit digest.
func NewAuditDigestTask(windowHours int) (*asynq.Task, error) {
	data, err := json.Marshal(AuditDigestPayload{WindowHours: windowHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditDigest, data), nil
}

// NewGrantOrphanScanTask constructs an Asynq task for the orphan scan.
func NewGrantOrphanScanTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskGrantOrphanScan, nil), nil
}
