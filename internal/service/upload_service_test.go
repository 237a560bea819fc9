package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"assac-admin-go/internal/apperr"
	"assac-admin-go/internal/model"
	"assac-admin-go/internal/repository"
	"assac-admin-go/internal/upload"
	"assac-admin-go/pkg/storage"
)

// fakeCatalogRepo is an in-memory CatalogRepository shared by the service
// tests.
type fakeCatalogRepo struct {
	mu      sync.Mutex
	entries map[string]*model.CatalogEntry

	createErr error
	existsErr error
	deleteErr error
	markErr   error
}

func newFakeCatalogRepo() *fakeCatalogRepo {
	return &fakeCatalogRepo{entries: make(map[string]*model.CatalogEntry)}
}

func (f *fakeCatalogRepo) Create(ctx context.Context, entry *model.CatalogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *entry
	f.entries[entry.FileName] = &cp
	return nil
}

func (f *fakeCatalogRepo) GetByFileName(ctx context.Context, fileName string) (*model.CatalogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[fileName]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeCatalogRepo) ExistsByFileName(ctx context.Context, fileName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.entries[fileName]
	return ok, nil
}

func (f *fakeCatalogRepo) DeleteByFileName(ctx context.Context, fileName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.entries, fileName)
	return nil
}

func (f *fakeCatalogRepo) FindAll(ctx context.Context) ([]model.CatalogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.CatalogEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeCatalogRepo) MarkPublished(ctx context.Context, fileName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	e, ok := f.entries[fileName]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.Visibility = true
	e.IsPublished = true
	return nil
}

func (f *fakeCatalogRepo) UpdateMetadata(ctx context.Context, fileName string, meta repository.MetadataUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[fileName]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	e.Title = meta.Title
	e.EditMode = false
	return nil
}

func (f *fakeCatalogRepo) SetVisibility(ctx context.Context, sn uint, visibility bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.SN == sn {
			e.Visibility = visibility
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeCatalogRepo) SetEditMode(ctx context.Context, sn uint, editMode bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.SN == sn {
			e.EditMode = editMode
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func newUploadFixture(t *testing.T) (*fakeCatalogRepo, upload.Store, *storage.Layout, UploadService) {
	t.Helper()
	layout, err := storage.NewLayout(t.TempDir())
	require.NoError(t, err)
	store, err := upload.NewFileStore(layout.TempRoot())
	require.NoError(t, err)
	repo := newFakeCatalogRepo()
	return repo, store, layout, NewUploadService(repo, store, layout)
}

func finishedSession(t *testing.T, store upload.Store, fileName, theme string, body string) *upload.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := store.Create(ctx, int64(len(body)), map[string]string{
		upload.MetaFileName: fileName,
		upload.MetaTheme:    theme,
	})
	require.NoError(t, err)
	_, err = store.Append(ctx, sess.ID, 0, strings.NewReader(body))
	require.NoError(t, err)
	sess, err = store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, upload.StateFinished, sess.State)
	return sess
}

func TestFinalizeSuccess(t *testing.T) {
	repo, store, layout, svc := newUploadFixture(t)
	ctx := context.Background()

	sess := finishedSession(t, store, "dem1", "dem", "tiff-bytes")
	require.NoError(t, svc.Finalize(ctx, sess))

	// row and file both exist
	entry, ok := repo.entries["dem1"]
	require.True(t, ok)
	assert.Equal(t, model.FileTypeRaster, entry.FileType)
	assert.Equal(t, "dem", entry.Theme)
	assert.False(t, entry.Visibility)
	assert.False(t, entry.IsPublished)
	assert.True(t, entry.EditMode)

	raw, err := os.ReadFile(layout.RasterPath("dem", "dem1"))
	require.NoError(t, err)
	assert.Equal(t, "tiff-bytes", string(raw))

	// session forgotten
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFinalizeDuplicateDiscardsUpload(t *testing.T) {
	repo, store, layout, svc := newUploadFixture(t)
	ctx := context.Background()

	repo.entries["dem1"] = &model.CatalogEntry{FileName: "dem1", Theme: "dem"}

	sess := finishedSession(t, store, "dem1", "dem", "late-arrival")

	// the loser of the name race is discarded silently
	require.NoError(t, svc.Finalize(ctx, sess))

	_, err := os.Stat(layout.RasterPath("dem", "dem1"))
	assert.True(t, os.IsNotExist(err), "loser must not overwrite final storage")
	_, err = os.Stat(sess.Path)
	assert.True(t, os.IsNotExist(err), "temp bytes must be reclaimed")
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFinalizeInvalidMetadataDiscardsUpload(t *testing.T) {
	repo, store, _, svc := newUploadFixture(t)
	ctx := context.Background()

	sess, err := store.Create(ctx, 4, map[string]string{upload.MetaTheme: "dem"})
	require.NoError(t, err)
	_, err = store.Append(ctx, sess.ID, 0, strings.NewReader("data"))
	require.NoError(t, err)
	sess, err = store.Get(ctx, sess.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Finalize(ctx, sess))
	assert.Empty(t, repo.entries)
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFinalizeInsertFailureKeepsSession(t *testing.T) {
	repo, store, layout, svc := newUploadFixture(t)
	ctx := context.Background()

	repo.createErr = errors.New("connection refused")
	sess := finishedSession(t, store, "dem1", "dem", "tiff-bytes")

	err := svc.Finalize(ctx, sess)
	assert.ErrorIs(t, err, apperr.ErrDownstream)

	// nothing durable happened and the session survives for a retry
	_, err = os.Stat(layout.RasterPath("dem", "dem1"))
	assert.True(t, os.IsNotExist(err))
	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, upload.StateFinished, got.State)
}

func TestFinalizeLostInsertRaceDiscardsUpload(t *testing.T) {
	repo, store, layout, svc := newUploadFixture(t)
	ctx := context.Background()

	// the pre-check sees a free name, but a concurrent finalizer wins the
	// insert and the unique index rejects ours
	repo.createErr = fmt.Errorf("%w: dem1", apperr.ErrDuplicate)
	sess := finishedSession(t, store, "dem1", "dem", "late-arrival")

	require.NoError(t, svc.Finalize(ctx, sess))

	_, err := os.Stat(layout.RasterPath("dem", "dem1"))
	assert.True(t, os.IsNotExist(err), "loser must not overwrite final storage")
	_, err = os.Stat(sess.Path)
	assert.True(t, os.IsNotExist(err), "temp bytes must be reclaimed")
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFinalizeMoveFailureIsInconsistency(t *testing.T) {
	repo, store, _, svc := newUploadFixture(t)
	ctx := context.Background()

	sess := finishedSession(t, store, "dem1", "dem", "tiff-bytes")
	// make the rename fail after the row insert
	require.NoError(t, os.Remove(sess.Path))

	err := svc.Finalize(ctx, sess)
	assert.ErrorIs(t, err, apperr.ErrInconsistency)

	// the row stays: readers may already have seen it
	_, ok := repo.entries["dem1"]
	assert.True(t, ok)
}

func TestPreCheckFilesystemBeforeCatalog(t *testing.T) {
	repo, _, layout, svc := newUploadFixture(t)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(layout.RasterRoot()+"/dem", 0o755))
	require.NoError(t, os.WriteFile(layout.RasterPath("dem", "dem1"), []byte("x"), 0o644))
	// a filesystem hit must short-circuit even when the catalog errors
	repo.existsErr = errors.New("db down")

	err := svc.PreCheck(ctx, "dem1", "dem")
	assert.ErrorIs(t, err, apperr.ErrDuplicate)

	_, err = svc.CheckDuplicate(ctx, "other", "dem")
	assert.Error(t, err)
}
