// Package apperr defines the error taxonomy shared by handlers and services.
//
// Handlers map these sentinels onto HTTP statuses; services wrap them with
// context via fmt.Errorf("...: %w", ...). errors.Is is the only sanctioned
// way to test for them.
package apperr

import "errors"

var (
	// client input errors -> 400
	ErrInvalidInput = errors.New("invalid input")

	// conflict errors -> 409
	ErrDuplicate        = errors.New("duplicate file name")
	ErrOffsetMismatch   = errors.New("upload offset mismatch")
	ErrAlreadyPublished = errors.New("layer already published")

	// not-found errors -> 404
	ErrNotFound          = errors.New("not found")
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrStoreNotFound     = errors.New("store not found")
	ErrSourceFileMissing = errors.New("source file missing")

	// gone -> 410; a terminated upload session is unrecoverable
	ErrGone = errors.New("upload terminated")

	// downstream errors -> 502; detail stays in logs, not in responses
	ErrDownstream = errors.New("downstream service error")

	// inconsistency errors -> 500; state diverged across systems after a
	// partial success and requires operator reconciliation, never an
	// automatic retry
	ErrInconsistency = errors.New("state inconsistency")
)
