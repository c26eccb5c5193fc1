package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentfleet/task-planner/internal/auth"
	"github.com/agentfleet/task-planner/internal/events"
	"github.com/agentfleet/task-planner/internal/queue"
	"github.com/agentfleet/task-planner/internal/store"
	"github.com/agentfleet/task-planner/internal/store/model"
	"github.com/agentfleet/task-planner/pkg/metrics"
)

const (
	defaultJobTTL = 7 * 24 * time.Hour

	defaultListLimit = 20
	maxListLimit     = 100

	defaultLogLimit = 200
	// hard cap regardless of the caller-requested limit
	maxLogLimit = 500
)

// Enqueuer hands a submitted job to the provisioning queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, args queue.ProvisionArgs) error
}

// ArtifactResolver resolves presigned URLs for the output artifacts a
// finished job may have produced.
type ArtifactResolver interface {
	ResolveURLs(ctx context.Context, jobID string) map[string]string
}

// JobView is the status projection: the job record plus, for terminal
// states, a URL per artifact that exists.
type JobView struct {
	Job     model.Job
	Outputs map[string]string
}

// LogPage is one forward page of runner output.
type LogPage struct {
	Stream    string
	Status    model.JobStatus
	Events    model.LogEventList
	NextToken *string
}

type JobService struct {
	store     store.Store
	enqueuer  Enqueuer
	artifacts ArtifactResolver
	evWriter  *events.EventProducer
	jobTTL    time.Duration

	logStreamPrefix string
	containerName   string
}

func NewJobService(s store.Store, enqueuer Enqueuer, artifacts ArtifactResolver, evWriter *events.EventProducer, logStreamPrefix, containerName string) *JobService {
	return &JobService{
		store:           s,
		enqueuer:        enqueuer,
		artifacts:       artifacts,
		evWriter:        evWriter,
		jobTTL:          defaultJobTTL,
		logStreamPrefix: logStreamPrefix,
		containerName:   containerName,
	}
}

// WithTTL overrides the default retention window for new jobs.
func (s *JobService) WithTTL(ttl time.Duration) *JobService {
	if ttl > 0 {
		s.jobTTL = ttl
	}
	return s
}

// Submit creates a new pending job owned by the caller's tenant and hands
// it to the queue. The tenant always comes from the authorization
// context, never from the request body.
func (s *JobService) Submit(ctx context.Context, caller auth.User, query string) (*model.Job, error) {
	if query == "" {
		return nil, NewErrValidation("'query' is required")
	}

	now := time.Now().UTC()
	job, err := s.store.Job().Create(ctx, model.Job{
		ID:          uuid.New(),
		TenantID:    caller.TenantID,
		SubmittedBy: caller.Subject,
		Query:       query,
		Status:      model.JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.jobTTL),
	})
	if err != nil {
		return nil, err
	}

	if err := s.enqueuer.Enqueue(ctx, queue.ProvisionArgs{
		JobID:    job.ID.String(),
		TenantID: job.TenantID,
		Query:    job.Query,
	}); err != nil {
		return nil, NewErrUpstreamFailure("failed to enqueue job", err)
	}

	zap.S().Named("job_service").Infow("job submitted",
		"job", job.ID, "tenant", job.TenantID)
	metrics.IncreaseJobsSubmittedTotalMetric()
	s.emitJobEvent(ctx, job, "")

	return job, nil
}

// GetStatus projects the job record for the caller. Cross-tenant access
// is rejected with a Forbidden distinct from NotFound; only terminal
// states resolve artifact URLs.
func (s *JobService) GetStatus(ctx context.Context, caller auth.User, id uuid.UUID) (*JobView, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}

	if job.TenantID != caller.TenantID {
		return nil, NewErrJobAccessForbidden(id)
	}

	view := &JobView{Job: *job}
	if job.Status.IsTerminal() {
		view.Outputs = s.artifacts.ResolveURLs(ctx, job.ID.String())
	}

	return view, nil
}

// List returns a newest-first page of the caller's tenant's jobs.
func (s *JobService) List(ctx context.Context, caller auth.User, limit int, nextToken string) (model.JobList, *string, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	offset, err := decodePageToken(nextToken)
	if err != nil {
		return nil, nil, NewErrValidation("invalid next_token")
	}

	jobs, err := s.store.Job().List(ctx, caller.TenantID, limit+1, offset)
	if err != nil {
		return nil, nil, err
	}

	var token *string
	if len(jobs) > limit {
		jobs = jobs[:limit]
		t := encodePageToken(offset + limit)
		token = &t
	}

	return jobs, token, nil
}

// GetLogs reads a forward page of runner output. A job without a runner
// handle has no stream yet; that is reported as not-yet-started together
// with the current state so the caller can tell it apart from not-found.
func (s *JobService) GetLogs(ctx context.Context, caller auth.User, id uuid.UUID, limit int, nextToken string) (*LogPage, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}

	if job.TenantID != caller.TenantID {
		return nil, NewErrJobAccessForbidden(id)
	}

	if job.RunnerHandle == nil {
		return nil, NewErrJobNotStarted(id, job.Status)
	}

	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	offset, err := decodePageToken(nextToken)
	if err != nil {
		return nil, NewErrValidation("invalid next_token")
	}

	stream := s.StreamName(*job.RunnerHandle)
	logEvents, err := s.store.LogEvent().Page(ctx, stream, offset, limit+1)
	if err != nil {
		return nil, err
	}

	page := &LogPage{
		Stream: stream,
		Status: job.Status,
		Events: logEvents,
	}
	if len(logEvents) > limit {
		page.Events = logEvents[:limit]
		t := encodePageToken(offset + limit)
		page.NextToken = &t
	}

	return page, nil
}

// StreamName derives the log stream identifier for a runner handle.
func (s *JobService) StreamName(handle string) string {
	return fmt.Sprintf("%s/%s/%s", s.logStreamPrefix, s.containerName, handle)
}

func (s *JobService) emitJobEvent(ctx context.Context, job *model.Job, detail string) {
	if s.evWriter == nil {
		return
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
		zap.S().Named("job_service").Warnw("failed to emit job event", "job", job.ID, "error", err)
	}
}

func encodePageToken(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodePageToken(token string) (int, error) {
	if token == "" {
		return 0, nil
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return 0, err
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, errors.New("invalid page token")
	}
	return offset, nil
}
