package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentfleet/task-planner/internal/auth"
	"github.com/agentfleet/task-planner/internal/provisioner"
	"github.com/agentfleet/task-planner/internal/queue"
	"github.com/agentfleet/task-planner/internal/store"
	"github.com/agentfleet/task-planner/internal/store/model"
	"github.com/agentfleet/task-planner/pkg/metrics"
)

// provisionTimeout is the budget for one provisioner call. Exceeding it
// fails this attempt instead of hanging the worker.
const provisionTimeout = 2 * time.Minute

// ProvisionService consumes delivered work items and drives a job from
// pending to provisioned. The queue is at-least-once, so every step is
// guarded by the job's current state: a redelivered item for a job that
// already advanced is a no-op, never a second compute launch.
type ProvisionService struct {
	store       store.Store
	provisioner provisioner.Provisioner
}

var _ queue.Handler = (*ProvisionService)(nil)

func NewProvisionService(s store.Store, p provisioner.Provisioner) *ProvisionService {
	return &ProvisionService{store: s, provisioner: p}
}

func (s *ProvisionService) HandleWorkItem(ctx context.Context, args queue.ProvisionArgs) error {
	logger := zap.S().Named("provision_service")

	jobID, err := uuid.Parse(args.JobID)
	if err != nil {
		// malformed item: retrying cannot help, drop it loudly
		logger.Errorw("dropping work item with invalid job id", "job_id", args.JobID)
		return nil
	}

	// mark intent before any external call, so a crash mid-provisioning
	// shows up as stuck-in-provisioning rather than silently lost
	job, err := s.store.Job().UpdateStatus(ctx, jobID,
		[]model.JobStatus{model.JobStatusPending},
		store.JobUpdate{Status: model.JobStatusProvisioning})
	if err != nil {
		if errors.Is(err, store.ErrPreconditionFailed) {
			logger.Infow("job already advanced past pending, skipping redelivered item", "job", jobID)
			return nil
		}
		if errors.Is(err, store.ErrRecordNotFound) {
			logger.Warnw("work item references unknown job, dropping", "job", jobID)
			return nil
		}
		return err
	}

	key, token, err := auth.GenerateRunnerJWTAndKey(job)
	if err != nil {
		return s.failJob(ctx, jobID, fmt.Sprintf("failed to mint runner credentials: %s", err), err)
	}
	if _, err := s.store.Key().Create(ctx, *key); err != nil {
		return s.failJob(ctx, jobID, fmt.Sprintf("failed to persist runner key: %s", err), err)
	}

	provisionCtx, cancel := context.WithTimeout(ctx, provisionTimeout)
	defer cancel()

	handle, err := s.provisioner.Start(provisionCtx, provisioner.StartOptions{
		JobID:    job.ID.String(),
		TenantID: job.TenantID,
		Query:    job.Query,
		Token:    token,
	})
	if err != nil {
		// the job fails inline, but the error is re-raised so the
		// queue's own redelivery policy governs the message
		return s.failJob(ctx, jobID, fmt.Sprintf("provisioning failed: %s", err),
			NewErrUpstreamFailure("provisioner", err))
	}

	if _, err := s.store.Job().UpdateStatus(ctx, jobID,
		[]model.JobStatus{model.JobStatusProvisioning},
		store.JobUpdate{Status: model.JobStatusProvisioned, RunnerHandle: &handle}); err != nil {
		if errors.Is(err, store.ErrPreconditionFailed) {
			// the runner beat us to running; attach the handle alone
			logger.Infow("job advanced during provisioning, attaching handle only", "job", jobID)
			return s.store.Job().UpdateHandle(ctx, jobID, handle)
		}
		return err
	}

	logger.Infow("job provisioned", "job", jobID, "handle", handle)
	metrics.IncreaseJobTransitionsTotalMetric(string(model.JobStatusProvisioned))
	return nil
}

// failJob records the failure reason on the job and passes cause through,
// keeping job-state handling and message-retry handling independent.
func (s *ProvisionService) failJob(ctx context.Context, jobID uuid.UUID, detail string, cause error) error {
	_, err := s.store.Job().UpdateStatus(ctx, jobID,
		[]model.JobStatus{
			model.JobStatusPending,
			model.JobStatusProvisioning,
			model.JobStatusProvisioned,
			model.JobStatusRunning,
		},
		store.JobUpdate{Status: model.JobStatusFailed, ErrorDetail: &detail})
	if err != nil && !errors.Is(err, store.ErrPreconditionFailed) {
		zap.S().Named("provision_service").Errorw("failed to mark job failed",
			"job", jobID, "error", err)
	}
	return cause
}
