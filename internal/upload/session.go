// Package upload implements the resumable upload session store.
//
// A session owns a partial-bytes blob under <tempRoot>/<theme>/<id> plus a
// small JSON sidecar (<id>.info) carrying the immutable creation state, so
// interrupted transfers survive a process restart. Received offsets are
// derived from the blob itself on reload and never trusted from memory
// alone.
package upload

import (
	"regexp"
	"time"
)

// State is the lifecycle state of an upload session.
type State string

// Session states. Terminated is a one-way door: every operation checks the
// state first, and nothing transitions out of it.
const (
	StateCreated    State = "created"
	StateReceiving  State = "receiving"
	StateFinished   State = "finished"
	StateTerminated State = "terminated"
)

// Metadata keys required at session creation.
const (
	MetaFileName = "file_name"
	MetaTheme    = "theme"
	MetaSRID     = "srid"
)

// FileNamePattern constrains logical dataset names. It matches the original
// catalog constraint; names become table names, file names and layer names.
var FileNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Session is one in-progress resumable transfer. Size and MetaData are fixed
// at creation; Offset only ever grows.
type Session struct {
	ID        string            `json:"id"`
	Size      int64             `json:"size"`
	Offset    int64             `json:"offset"`
	State     State             `json:"state"`
	MetaData  map[string]string `json:"metadata"`
	Path      string            `json:"path"`
	CreatedAt time.Time         `json:"created_at"`
}

// FileName returns the logical dataset name from the creation metadata.
func (s *Session) FileName() string { return s.MetaData[MetaFileName] }

// Theme returns the theme from the creation metadata.
func (s *Session) Theme() string { return s.MetaData[MetaTheme] }

// SRID returns the spatial reference id from the creation metadata, if any.
func (s *Session) SRID() string { return s.MetaData[MetaSRID] }
