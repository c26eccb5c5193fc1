package service

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/agentfleet/task-planner/internal/store/model"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrJobNotFound(id uuid.UUID) *ErrResourceNotFound {
	return NewErrResourceNotFound(id.String(), "job")
}

func NewErrMemberNotFound(id string) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "member")
}

type ErrForbidden struct {
	error
}

func NewErrForbidden(message string) *ErrForbidden {
	return &ErrForbidden{fmt.Errorf("forbidden: %s", message)}
}

func NewErrJobAccessForbidden(id uuid.UUID) *ErrForbidden {
	return &ErrForbidden{fmt.Errorf("you do not have access to job %s", id)}
}

type ErrConflict struct {
	error
}

func NewErrConflict(message string) *ErrConflict {
	return &ErrConflict{fmt.Errorf("conflict: %s", message)}
}

type ErrValidation struct {
	error
}

func NewErrValidation(message string) *ErrValidation {
	return &ErrValidation{fmt.Errorf("invalid request: %s", message)}
}

// ErrJobNotStarted distinguishes "nothing to show yet" from "not found":
// the job exists but no runner handle has been assigned, so there is no
// log stream to read. State carries the job's current state so the caller
// can tell queued from provisioning.
type ErrJobNotStarted struct {
	error
	State model.JobStatus
}

func NewErrJobNotStarted(id uuid.UUID, state model.JobStatus) *ErrJobNotStarted {
	return &ErrJobNotStarted{
		error: fmt.Errorf("job %s has no runner yet, it may still be queued or provisioning", id),
		State: state,
	}
}

type ErrUpstreamFailure struct {
	error
}

func NewErrUpstreamFailure(message string, cause error) *ErrUpstreamFailure {
	return &ErrUpstreamFailure{fmt.Errorf("%s: %w", message, cause)}
}
