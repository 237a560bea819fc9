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
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"assac-admin-go/internal/apperr"
	"assac-admin-go/pkg/log"
)

const (
	redisKeyPrefix = "upload:session:"
	// terminated tombstones answer 410 for a day, then age out to 404
	tombstoneTTL = 24 * time.Hour
)

// RedisStore keeps session state in Redis so multiple instances sharing the
// temp volume can see the same sessions. Chunk bytes still land on the
// shared filesystem; all Patch requests for one upload id must be routed to
// a single instance, which the upload URL already guarantees with session
// affinity.
type RedisStore struct {
	rdb      *redis.Client
	tempRoot string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRedisStore creates a RedisStore writing blobs under tempRoot.
func NewRedisStore(rdb *redis.Client, tempRoot string) (*RedisStore, error) {
	if err := os.MkdirAll(tempRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create temp root: %w", err)
	}
	return &RedisStore{
		rdb:      rdb,
		tempRoot: tempRoot,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

func (s *RedisStore) lock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *RedisStore) forget(id string) {
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
}

func (s *RedisStore) Create(ctx context.Context, size int64, meta map[string]string) (*Session, error) {
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
	if err := s.save(ctx, &sess); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return snapshot(&sess), nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.State == StateTerminated {
		return nil, fmt.Errorf("%w: session %s", apperr.ErrGone, id)
	}
	return sess, nil
}

func (s *RedisStore) Append(ctx context.Context, id string, offset int64, src io.Reader) (int64, error) {
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return 0, err
	}
	if sess.State == StateTerminated {
		return 0, fmt.Errorf("%w: session %s", apperr.ErrGone, id)
	}
	if offset != sess.Offset {
		return sess.Offset, fmt.Errorf("%w: got %d, expected %d", apperr.ErrOffsetMismatch, offset, sess.Offset)
	}

	remaining := sess.Size - sess.Offset
	f, err := os.OpenFile(sess.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return sess.Offset, fmt.Errorf("open session blob: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(src, remaining))
	if copyErr == nil && n == remaining && hasMore(src) {
		if err := f.Truncate(sess.Offset); err != nil {
			_ = f.Close()
			return sess.Offset, fmt.Errorf("truncate overlong chunk: %w", err)
		}
		_ = f.Close()
		return sess.Offset, fmt.Errorf("%w: chunk exceeds declared upload size %d", apperr.ErrInvalidInput, sess.Size)
	}
	closeErr := f.Close()

	sess.Offset += n
	if sess.Offset == sess.Size {
		sess.State = StateFinished
	} else {
		sess.State = StateReceiving
	}
	if err := s.save(ctx, sess); err != nil {
		log.Warnf("[Append] failed to persist session %s to redis: %v", id, err)
	}

	if copyErr != nil {
		return sess.Offset, fmt.Errorf("append chunk: %w", copyErr)
	}
	if closeErr != nil {
		return sess.Offset, fmt.Errorf("close session blob: %w", closeErr)
	}
	return sess.Offset, nil
}

func (s *RedisStore) Terminate(ctx context.Context, id string) error {
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if sess.State == StateTerminated {
		return nil
	}
	if err := os.Remove(sess.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session blob: %w", err)
	}
	sess.State = StateTerminated
	if err := s.save(ctx, sess); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, redisKeyPrefix+id, tombstoneTTL).Err()
}

func (s *RedisStore) Remove(ctx context.Context, id string) error {
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()

	sess, err := s.load(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := os.Remove(sess.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("[Remove] failed to remove session blob for %s: %v", id, err)
	}
	if err := s.rdb.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete session key: %w", err)
	}
	s.forget(id)
	return nil
}

func (s *RedisStore) save(ctx context.Context, sess *Session) error {
	meta, err := json.Marshal(sess.MetaData)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	fields := map[string]interface{}{
		"size":       strconv.FormatInt(sess.Size, 10),
		"offset":     strconv.FormatInt(sess.Offset, 10),
		"state":      string(sess.State),
		"meta":       string(meta),
		"path":       sess.Path,
		"created_at": sess.CreatedAt.Format(time.RFC3339Nano),
	}
	if err := s.rdb.HSet(ctx, redisKeyPrefix+sess.ID, fields).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, id string) (*Session, error) {
	fields, err := s.rdb.HGetAll(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: session %s", apperr.ErrNotFound, id)
	}

	size, err := strconv.ParseInt(fields["size"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: bad size: %w", id, err)
	}
	offset, err := strconv.ParseInt(fields["offset"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: bad offset: %w", id, err)
	}
	meta := make(map[string]string)
	if err := json.Unmarshal([]byte(fields["meta"]), &meta); err != nil {
		return nil, fmt.Errorf("corrupt session %s: bad metadata: %w", id, err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, fields["created_at"])

	return &Session{
		ID:        id,
		Size:      size,
		Offset:    offset,
		State:     State(fields["state"]),
		MetaData:  meta,
		Path:      fields["path"],
		CreatedAt: createdAt,
	}, nil
}
