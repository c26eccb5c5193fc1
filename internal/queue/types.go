package queue

import (
	"context"

	"github.com/riverqueue/river"
)

const (
	DefaultQueue  = "provisioning"
	MaxJobRetries = 3
)

// ProvisionArgs is the work item handed from submission to the
// provisioning step. Stored as JSON in river_job.args; redelivery after a
// failed attempt re-runs the same payload, so handlers must be idempotent.
type ProvisionArgs struct {
	JobID    string `json:"job_id"`
	TenantID string `json:"tenant_id"`
	Query    string `json:"query"`
}

// Kind returns the job kind for River registration.
func (ProvisionArgs) Kind() string {
	return "job_provision"
}

// InsertOpts returns the default insert options for this job type.
func (ProvisionArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       DefaultQueue,
		MaxAttempts: MaxJobRetries,
	}
}

// Handler consumes a delivered work item. An error returned here makes
// the queue redeliver the item under its own retry policy; the job
// record's state is handled by the implementation independently.
type Handler interface {
	HandleWorkItem(ctx context.Context, args ProvisionArgs) error
}
