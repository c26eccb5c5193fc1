package store

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("already exists")

	// ErrPreconditionFailed is returned by guarded updates when the
	// record is no longer in the expected state. Callers decide whether
	// to re-read and retry or to treat it as a safe no-op.
	ErrPreconditionFailed = errors.New("precondition failed")
)
