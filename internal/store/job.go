package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agentfleet/task-planner/internal/store/model"
)

type Job interface {
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	List(ctx context.Context, tenantID string, limit int, offset int) (model.JobList, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected []model.JobStatus, update JobUpdate) (*model.Job, error)
	UpdateHandle(ctx context.Context, id uuid.UUID, handle string) error
	InitialMigration() error
}

// JobUpdate carries the fields a transition writes. Only non-nil fields
// are written, so concurrent writers touching different fields never
// clobber each other.
type JobUpdate struct {
	Status       model.JobStatus
	RunnerHandle *string
	ErrorDetail  *string
}

type JobStore struct {
	db *gorm.DB
}

var _ Job = (*JobStore)(nil)

func NewJob(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Job{})
}

func (s *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	result := s.getDB(ctx).Clauses(clause.Returning{}).Create(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &job, nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	job := model.Job{ID: id}
	result := s.getDB(ctx).First(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &job, nil
}

func (s *JobStore) List(ctx context.Context, tenantID string, limit int, offset int) (model.JobList, error) {
	var jobs model.JobList
	result := s.getDB(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs)
	if result.Error != nil {
		return nil, result.Error
	}
	return jobs, nil
}

// UpdateStatus moves a job to update.Status provided its current status is
// one of expected. The state guard and the write happen in a single
// statement, so two racing writers cannot both take the same edge: the
// loser sees ErrPreconditionFailed and must re-read.
func (s *JobStore) UpdateStatus(ctx context.Context, id uuid.UUID, expected []model.JobStatus, update JobUpdate) (*model.Job, error) {
	fields := map[string]any{
		"status":     update.Status,
		"updated_at": time.Now().UTC(),
	}
	if update.RunnerHandle != nil {
		fields["runner_handle"] = *update.RunnerHandle
	}
	if update.ErrorDetail != nil {
		fields["error_detail"] = *update.ErrorDetail
	}

	result := s.getDB(ctx).Model(&model.Job{}).
		Where("id = ? AND status IN ?", id, expected).
		Updates(fields)
	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		// distinguish a missing record from a stale expectation
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrPreconditionFailed
	}

	return s.Get(ctx, id)
}

// UpdateHandle writes the runner handle alone, without touching status.
// Used when the runner reported in before the provisioning step committed
// its own transition; the two writers touch disjoint fields.
func (s *JobStore) UpdateHandle(ctx context.Context, id uuid.UUID, handle string) error {
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{"runner_handle": handle, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
