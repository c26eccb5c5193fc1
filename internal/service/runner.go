package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentfleet/task-planner/internal/auth"
	"github.com/agentfleet/task-planner/internal/events"
	"github.com/agentfleet/task-planner/internal/store"
	"github.com/agentfleet/task-planner/internal/store/model"
	"github.com/agentfleet/task-planner/pkg/metrics"
)

// Uploader writes runner output artifacts to blob storage.
type Uploader interface {
	Upload(ctx context.Context, jobID, name string, data []byte, contentType string) error
}

// RunnerService is the executor-facing surface. Every operation is scoped
// to the single job named by the runner's token claims; a runner can
// never observe or mutate another job.
type RunnerService struct {
	store    store.Store
	uploader Uploader
	evWriter *events.EventProducer

	logStreamPrefix string
	containerName   string
}

func NewRunnerService(s store.Store, uploader Uploader, evWriter *events.EventProducer, logStreamPrefix, containerName string) *RunnerService {
	return &RunnerService{
		store:           s,
		uploader:        uploader,
		evWriter:        evWriter,
		logStreamPrefix: logStreamPrefix,
		containerName:   containerName,
	}
}

// expectedStates maps each runner-reportable state to the states it may
// be entered from. The runner owns these edges exclusively; the
// provisioning step never takes them.
var expectedStates = map[model.JobStatus][]model.JobStatus{
	model.JobStatusRunning:   {model.JobStatusProvisioning, model.JobStatusProvisioned},
	model.JobStatusCompleted: {model.JobStatusRunning},
	model.JobStatusFailed: {
		model.JobStatusPending,
		model.JobStatusProvisioning,
		model.JobStatusProvisioned,
		model.JobStatusRunning,
	},
}

// UpdateStatus applies a runner-reported transition. Unknown states and
// illegal edges are rejected loudly: at most one terminal state is ever
// recorded for a job.
func (s *RunnerService) UpdateStatus(ctx context.Context, claims auth.RunnerClaims, status model.JobStatus, errorDetail *string) (*model.Job, error) {
	jobID, err := uuid.Parse(claims.JobID)
	if err != nil {
		return nil, NewErrValidation("invalid job id in token")
	}

	expected, ok := expectedStates[status]
	if !ok {
		return nil, NewErrValidation(fmt.Sprintf("runner may not report state %q", status))
	}

	update := store.JobUpdate{Status: status}
	if status == model.JobStatusFailed {
		update.ErrorDetail = errorDetail
	}

	job, err := s.store.Job().UpdateStatus(ctx, jobID, expected, update)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(jobID)
		}
		if errors.Is(err, store.ErrPreconditionFailed) {
			return nil, NewErrConflict(fmt.Sprintf("job %s cannot move to %s", jobID, status))
		}
		return nil, err
	}

	zap.S().Named("runner_service").Infow("runner reported state",
		"job", jobID, "state", status)
	metrics.IncreaseJobTransitionsTotalMetric(string(status))
	s.emitJobEvent(ctx, job)

	if status.IsTerminal() {
		// the runner is done; its credential has nothing left to sign for
		if err := s.store.Key().Delete(ctx, jobID.String()); err != nil {
			zap.S().Named("runner_service").Warnw("failed to delete runner signing key",
				"job", jobID, "error", err)
		}
	}

	return job, nil
}

// Heartbeat records liveness as an artifact, mirroring what a status
// reader resolves once the job finishes.
func (s *RunnerService) Heartbeat(ctx context.Context, claims auth.RunnerClaims) error {
	payload, err := json.Marshal(map[string]string{
		"job_id":   claims.JobID,
		"alive_at": time.Now().UTC().Format(time.RFC3339),
		"status":   "alive",
	})
	if err != nil {
		return err
	}
	return s.uploader.Upload(ctx, claims.JobID, "heartbeat.json", payload, "application/json")
}

// AppendLogs stores runner output lines under the job's log stream.
func (s *RunnerService) AppendLogs(ctx context.Context, claims auth.RunnerClaims, lines []LogLine) error {
	jobID, err := uuid.Parse(claims.JobID)
	if err != nil {
		return NewErrValidation("invalid job id in token")
	}

	job, err := s.store.Job().Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrJobNotFound(jobID)
		}
		return err
	}
	if job.RunnerHandle == nil {
		return NewErrConflict("job has no runner handle yet")
	}

	stream := fmt.Sprintf("%s/%s/%s", s.logStreamPrefix, s.containerName, *job.RunnerHandle)
	logEvents := make([]model.LogEvent, 0, len(lines))
	for _, line := range lines {
		ts := line.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		logEvents = append(logEvents, model.LogEvent{
			Stream:    stream,
			Timestamp: ts,
			Message:   line.Message,
		})
	}
	return s.store.LogEvent().Append(ctx, logEvents)
}

// LogLine is one runner output line as reported over the wire.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// allowedArtifacts are the object names a runner may upload.
var allowedArtifacts = map[string]struct{}{
	"screenshot.png": {},
	"capture.html":   {},
	"execution.log":  {},
	"error.json":     {},
	"heartbeat.json": {},
}

// UploadArtifact stores one named output object for the runner's job.
func (s *RunnerService) UploadArtifact(ctx context.Context, claims auth.RunnerClaims, name string, data []byte, contentType string) error {
	if _, ok := allowedArtifacts[name]; !ok {
		return NewErrValidation(fmt.Sprintf("unknown artifact %q", name))
	}
	return s.uploader.Upload(ctx, claims.JobID, name, data, contentType)
}

func (s *RunnerService) emitJobEvent(ctx context.Context, job *model.Job) {
	if s.evWriter == nil {
		return
	}
	detail := ""
	if job.ErrorDetail != nil {
		detail = *job.ErrorDetail
	}
	data, err := json.Marshal(events.JobEvent{
		JobID:    job.ID.String(),
		TenantID: job.TenantID,
		State:    string(job.Status),
		Detail:   detail,
	})
	if err != nil {
		return
	}
	if err := s.evWriter.Write(ctx, events.JobMessageKind, bytes.NewReader(data)); err != nil {
		zap.S().Named("runner_service").Warnw("failed to emit job event", "job", job.ID, "error", err)
	}
}
