package upload

import (
	"context"
	"io"
)

// Store persists upload sessions and their partial bytes.
//
// Implementations must serialize Append calls per session id and must treat
// a terminated session as gone for every subsequent operation. Errors use
// the apperr sentinels: ErrNotFound for unknown ids, ErrGone for terminated
// sessions, ErrOffsetMismatch for out-of-order writes.
type Store interface {
	// Create allocates a new session with a fixed declared size and
	// immutable metadata, and returns it.
	Create(ctx context.Context, size int64, meta map[string]string) (*Session, error)

	// Get returns a snapshot of the session without mutating it.
	Get(ctx context.Context, id string) (*Session, error)

	// Append writes a chunk at exactly the session's current offset and
	// returns the new offset. A mismatched offset fails with
	// ErrOffsetMismatch and leaves the stored bytes untouched. Reaching the
	// declared size moves the session to StateFinished.
	Append(ctx context.Context, id string, offset int64, src io.Reader) (int64, error)

	// Terminate moves the session to StateTerminated and reclaims its
	// partial bytes. Terminating an already-terminated session is not an
	// error.
	Terminate(ctx context.Context, id string) error

	// Remove forgets the session entirely. The finalizer calls it after the
	// blob has been moved or discarded; afterwards the id resolves to
	// ErrNotFound.
	Remove(ctx context.Context, id string) error
}
