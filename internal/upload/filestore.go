package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"assac-admin-go/internal/apperr"
	"assac-admin-go/pkg/log"
)

// FileStore is the single-process Store backing. Session state lives in an
// in-process map plus a JSON sidecar next to each partial blob; on startup
// the sidecars are reloaded and offsets re-derived from the blobs, so an
// interrupted upload can resume after a restart.
type FileStore struct {
	tempRoot string

	mu       sync.RWMutex
	sessions map[string]*sessionHandle
}

// sessionHandle serializes all operations on one session. The per-session
// mutex is the exclusive-write lock the protocol requires for Patch.
type sessionHandle struct {
	mu   sync.Mutex
	sess Session
}

// NewFileStore creates a FileStore rooted at tempRoot and reloads any
// sessions left behind by a previous process.
func NewFileStore(tempRoot string) (*FileStore, error) {
	if err := os.MkdirAll(tempRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create temp root: %w", err)
	}
	s := &FileStore{
		tempRoot: tempRoot,
		sessions: make(map[string]*sessionHandle),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Create(ctx context.Context, size int64, meta map[string]string) (*Session, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: declared size must be positive", apperr.ErrInvalidInput)
	}

	metaCopy := make(map[string]string, len(meta))
	for k, v := range meta {
		metaCopy[k] = v
	}
	theme := metaCopy[MetaTheme]
	if theme == "" {
		theme = "temp"
	}

	dir := filepath.Join(s.tempRoot, theme)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	id := uuid.New().String()
	path := filepath.Join(dir, id)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create session blob: %w", err)
	}
	_ = f.Close()

	sess := Session{
		ID:        id,
		Size:      size,
		Offset:    0,
		State:     StateCreated,
		MetaData:  metaCopy,
		Path:      path,
		CreatedAt: time.Now().UTC(),
	}
	if err := writeInfo(&sess); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	s.mu.Lock()
	s.sessions[id] = &sessionHandle{sess: sess}
	s.mu.Unlock()

	return snapshot(&sess), nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*Session, error) {
	h, err := s.handle(id)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess.State == StateTerminated {
		return nil, fmt.Errorf("%w: session %s", apperr.ErrGone, id)
	}
	return snapshot(&h.sess), nil
}

func (s *FileStore) Append(ctx context.Context, id string, offset int64, src io.Reader) (int64, error) {
	h, err := s.handle(id)
	if err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sess.State == StateTerminated {
		return 0, fmt.Errorf("%w: session %s", apperr.ErrGone, id)
	}
	if offset != h.sess.Offset {
		return h.sess.Offset, fmt.Errorf("%w: got %d, expected %d", apperr.ErrOffsetMismatch, offset, h.sess.Offset)
	}

	remaining := h.sess.Size - h.sess.Offset
	f, err := os.OpenFile(h.sess.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return h.sess.Offset, fmt.Errorf("open session blob: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(src, remaining))
	if copyErr == nil && n == remaining && hasMore(src) {
		// the body runs past the declared size: rewind the blob and reject
		// the whole chunk instead of silently dropping the tail
		if err := f.Truncate(h.sess.Offset); err != nil {
			_ = f.Close()
			return h.sess.Offset, fmt.Errorf("truncate overlong chunk: %w", err)
		}
		_ = f.Close()
		return h.sess.Offset, fmt.Errorf("%w: chunk exceeds declared upload size %d", apperr.ErrInvalidInput, h.sess.Size)
	}
	closeErr := f.Close()

	h.sess.Offset += n
	if h.sess.Offset == h.sess.Size {
		h.sess.State = StateFinished
	} else {
		h.sess.State = StateReceiving
	}
	if err := writeInfo(&h.sess); err != nil {
		log.Warnf("[Append] failed to persist session info for %s: %v", id, err)
	}

	if copyErr != nil {
		// partial write: the offset reflects what actually landed on disk,
		// the client discovers it via Head and resumes
		return h.sess.Offset, fmt.Errorf("append chunk: %w", copyErr)
	}
	if closeErr != nil {
		return h.sess.Offset, fmt.Errorf("close session blob: %w", closeErr)
	}
	return h.sess.Offset, nil
}

func (s *FileStore) Terminate(ctx context.Context, id string) error {
	h, err := s.handle(id)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sess.State == StateTerminated {
		return nil
	}
	if err := os.Remove(h.sess.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session blob: %w", err)
	}
	if err := os.Remove(infoPath(h.sess.Path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("[Terminate] failed to remove session info for %s: %v", id, err)
	}
	// the handle stays behind as a tombstone so a second Terminate is a
	// no-op and Patch/Head report 410 rather than 404
	h.sess.State = StateTerminated
	return nil
}

func (s *FileStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	h, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := os.Remove(infoPath(h.sess.Path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("[Remove] failed to remove session info for %s: %v", id, err)
	}
	if err := os.Remove(h.sess.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("[Remove] failed to remove session blob for %s: %v", id, err)
	}
	return nil
}

func (s *FileStore) handle(id string) (*sessionHandle, error) {
	s.mu.RLock()
	h, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: session %s", apperr.ErrNotFound, id)
	}
	return h, nil
}

// reload walks the temp root and restores sessions from their sidecars.
// Offsets come from the blobs, not the sidecars, because a crash may have
// happened between a write and the sidecar update.
func (s *FileStore) reload() error {
	return filepath.WalkDir(s.tempRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".info") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("[reload] unreadable session info %s: %v", path, err)
			return nil
		}
		var sess Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			log.Warnf("[reload] corrupt session info %s: %v", path, err)
			return nil
		}
		sess.Offset = 0
		if fi, err := os.Stat(sess.Path); err == nil {
			sess.Offset = fi.Size()
		}
		if sess.Offset == sess.Size {
			sess.State = StateFinished
		} else if sess.Offset > 0 {
			sess.State = StateReceiving
		} else {
			sess.State = StateCreated
		}
		s.sessions[sess.ID] = &sessionHandle{sess: sess}
		log.Infof("[reload] restored upload session %s at offset %d/%d", sess.ID, sess.Offset, sess.Size)
		return nil
	})
}

// hasMore reports whether src still has unread bytes after the limited copy
// consumed everything the session can accept.
func hasMore(src io.Reader) bool {
	var buf [1]byte
	n, _ := src.Read(buf[:])
	return n > 0
}

func snapshot(sess *Session) *Session {
	cp := *sess
	cp.MetaData = make(map[string]string, len(sess.MetaData))
	for k, v := range sess.MetaData {
		cp.MetaData[k] = v
	}
	return &cp
}

func infoPath(blobPath string) string {
	return blobPath + ".info"
}

func writeInfo(sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session info: %w", err)
	}
	if err := os.WriteFile(infoPath(sess.Path), raw, 0o644); err != nil {
		return fmt.Errorf("write session info: %w", err)
	}
	return nil
}
