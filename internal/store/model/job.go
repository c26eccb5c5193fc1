package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a job. Transitions are monotonic:
// a job only moves forward through the sequence, except that Failed is
// reachable from every non-terminal state.
type JobStatus string

const (
	JobStatusPending      JobStatus = "pending"
	JobStatusProvisioning JobStatus = "provisioning"
	JobStatusProvisioned  JobStatus = "provisioned"
	JobStatusRunning      JobStatus = "running"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
)

// jobTransitions holds the legal forward edges of the lifecycle.
// Failed is handled separately since it is reachable from any
// non-terminal state.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:      {JobStatusProvisioning},
	JobStatusProvisioning: {JobStatusProvisioned, JobStatusRunning},
	JobStatusProvisioned:  {JobStatusRunning},
	JobStatusRunning:      {JobStatusCompleted},
}

// IsTerminal reports whether s is a terminal state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsValid reports whether s is a known state.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusProvisioning, JobStatusProvisioned,
		JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if next == JobStatusFailed {
		return !s.IsTerminal()
	}
	for _, t := range jobTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Job is the authoritative record of a submitted computer-use job.
// TenantID is set once at submission and never changes.
type Job struct {
	ID           uuid.UUID `gorm:"primaryKey;"`
	TenantID     string    `gorm:"index;not null"`
	SubmittedBy  string    `gorm:"not null"`
	Query        string    `gorm:"not null"`
	Status       JobStatus `gorm:"not null"`
	RunnerHandle *string
	ErrorDetail  *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    time.Time
}

type JobList []Job

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}
