package queue

import (
	"context"

	"github.com/riverqueue/river"
	"go.uber.org/zap"
)

// ProvisionWorker drains the provisioning queue. All state handling lives
// in the Handler; the worker only bridges River's delivery contract.
type ProvisionWorker struct {
	river.WorkerDefaults[ProvisionArgs]
	handler Handler
}

func NewProvisionWorker(handler Handler) *ProvisionWorker {
	return &ProvisionWorker{handler: handler}
}

func (w *ProvisionWorker) Work(ctx context.Context, job *river.Job[ProvisionArgs]) error {
	zap.S().Named("provision_worker").Infow("work item delivered",
		"job", job.Args.JobID, "attempt", job.Attempt)
	return w.handler.HandleWorkItem(ctx, job.Args)
}
