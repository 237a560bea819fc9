package handler

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"assac-admin-go/internal/model"
	"assac-admin-go/internal/repository"
	"assac-admin-go/internal/service"
	"assac-admin-go/internal/upload"
	"assac-admin-go/pkg/storage"
)

// memCatalogRepo is a minimal in-memory CatalogRepository for routing tests.
type memCatalogRepo struct {
	entries map[string]*model.CatalogEntry
}

func newMemCatalogRepo() *memCatalogRepo {
	return &memCatalogRepo{entries: make(map[string]*model.CatalogEntry)}
}

func (m *memCatalogRepo) Create(ctx context.Context, entry *model.CatalogEntry) error {
	cp := *entry
	m.entries[entry.FileName] = &cp
	return nil
}

func (m *memCatalogRepo) GetByFileName(ctx context.Context, fileName string) (*model.CatalogEntry, error) {
	e, ok := m.entries[fileName]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return e, nil
}

func (m *memCatalogRepo) ExistsByFileName(ctx context.Context, fileName string) (bool, error) {
	_, ok := m.entries[fileName]
	return ok, nil
}

func (m *memCatalogRepo) DeleteByFileName(ctx context.Context, fileName string) error {
	delete(m.entries, fileName)
	return nil
}

func (m *memCatalogRepo) FindAll(ctx context.Context) ([]model.CatalogEntry, error) {
	return nil, nil
}

func (m *memCatalogRepo) MarkPublished(ctx context.Context, fileName string) error { return nil }

func (m *memCatalogRepo) UpdateMetadata(ctx context.Context, fileName string, meta repository.MetadataUpdate) error {
	return nil
}

func (m *memCatalogRepo) SetVisibility(ctx context.Context, sn uint, visibility bool) error {
	return nil
}

func (m *memCatalogRepo) SetEditMode(ctx context.Context, sn uint, editMode bool) error { return nil }

type uploadTestEnv struct {
	router *gin.Engine
	repo   *memCatalogRepo
	store  upload.Store
	layout *storage.Layout
}

func newUploadTestEnv(t *testing.T) *uploadTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	layout, err := storage.NewLayout(t.TempDir())
	require.NoError(t, err)
	store, err := upload.NewFileStore(layout.TempRoot())
	require.NoError(t, err)
	repo := newMemCatalogRepo()
	svc := service.NewUploadService(repo, store, layout)
	h := NewUploadHandler(store, svc, 0)

	r := gin.New()
	tiff := r.Group("/admin/tiffuploads")
	tiff.POST("", h.Create)
	tiff.PATCH("/:id", h.Patch)
	tiff.HEAD("/:id", h.Head)
	tiff.DELETE("/:id", h.Terminate)
	r.POST("/admin/precheck", h.PreCheck)
	r.GET("/admin/raster/precheck/:fileName", h.PreCheckRaster)

	return &uploadTestEnv{router: r, repo: repo, store: store, layout: layout}
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func (env *uploadTestEnv) createSession(t *testing.T, size string, meta string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/admin/tiffuploads", nil)
	req.Header.Set("Upload-Length", size)
	req.Header.Set("Upload-Metadata", meta)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *uploadTestEnv) patch(t *testing.T, location, offset, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPatch, location, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/offset+octet-stream")
	req.Header.Set("Upload-Offset", offset)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *uploadTestEnv) head(t *testing.T, location string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodHead, location, nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func demMeta() string {
	return "file_name " + b64("dem1") + ",theme " + b64("dem") + ",srid " + b64("4326")
}

func TestResumableUploadEndToEnd(t *testing.T) {
	env := newUploadTestEnv(t)
	body := strings.Repeat("x", 1000)

	w := env.createSession(t, "1000", demMeta())
	require.Equal(t, http.StatusCreated, w.Code)
	location := w.Header().Get("Location")
	require.NotEmpty(t, location)
	assert.Equal(t, "0", w.Header().Get("Upload-Offset"))

	// first half
	w = env.patch(t, location, "0", body[:500])
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "500", w.Header().Get("Upload-Offset"))

	// interrupted client asks where to resume
	w = env.head(t, location)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "500", w.Header().Get("Upload-Offset"))
	assert.Equal(t, "1000", w.Header().Get("Upload-Length"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	// second half completes and finalizes before the response
	w = env.patch(t, location, "500", body[500:])
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "1000", w.Header().Get("Upload-Offset"))

	entry, ok := env.repo.entries["dem1"]
	require.True(t, ok, "catalog row must exist after the final chunk")
	assert.Equal(t, model.FileTypeRaster, entry.FileType)
	assert.Equal(t, "4326", entry.SRID)

	raw, err := os.ReadFile(env.layout.RasterPath("dem", "dem1"))
	require.NoError(t, err)
	assert.Equal(t, body, string(raw))
}

func TestCreateRejectsMissingLength(t *testing.T) {
	env := newUploadTestEnv(t)
	w := env.createSession(t, "", demMeta())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRejectsBadMetadata(t *testing.T) {
	env := newUploadTestEnv(t)

	// no file_name
	w := env.createSession(t, "100", "theme "+b64("dem"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// file name with path characters
	w = env.createSession(t, "100", "file_name "+b64("../etc/passwd")+",theme "+b64("dem"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	env := newUploadTestEnv(t)
	env.repo.entries["dem1"] = &model.CatalogEntry{FileName: "dem1"}

	w := env.createSession(t, "100", demMeta())
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateEnforcesMaxSize(t *testing.T) {
	env := newUploadTestEnv(t)
	// rebuild the route with a 10 byte cap
	gin.SetMode(gin.TestMode)
	svc := service.NewUploadService(env.repo, env.store, env.layout)
	h := NewUploadHandler(env.store, svc, 10)
	r := gin.New()
	r.POST("/admin/tiffuploads", h.Create)

	req := httptest.NewRequest(http.MethodPost, "/admin/tiffuploads", nil)
	req.Header.Set("Upload-Length", "11")
	req.Header.Set("Upload-Metadata", demMeta())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestPatchOffsetConflict(t *testing.T) {
	env := newUploadTestEnv(t)
	w := env.createSession(t, "10", demMeta())
	require.Equal(t, http.StatusCreated, w.Code)
	location := w.Header().Get("Location")

	w = env.patch(t, location, "5", "xxxxx")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPatchRejectsOverlongBody(t *testing.T) {
	env := newUploadTestEnv(t)
	w := env.createSession(t, "10", demMeta())
	require.Equal(t, http.StatusCreated, w.Code)
	location := w.Header().Get("Location")

	w = env.patch(t, location, "0", strings.Repeat("x", 15))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// the session is still usable at offset zero
	w = env.head(t, location)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("Upload-Offset"))
}

func TestPatchUnknownSession(t *testing.T) {
	env := newUploadTestEnv(t)
	w := env.patch(t, "/admin/tiffuploads/does-not-exist", "0", "x")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPatchRequiresOffsetContentType(t *testing.T) {
	env := newUploadTestEnv(t)
	w := env.createSession(t, "10", demMeta())
	location := w.Header().Get("Location")

	req := httptest.NewRequest(http.MethodPatch, location, strings.NewReader("x"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Upload-Offset", "0")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestTerminateThenGone(t *testing.T) {
	env := newUploadTestEnv(t)
	w := env.createSession(t, "10", demMeta())
	location := w.Header().Get("Location")

	req := httptest.NewRequest(http.MethodDelete, location, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// repeat delete stays idempotent
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, location, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// the id is gone, not unknown
	w = env.patch(t, location, "0", "x")
	assert.Equal(t, http.StatusGone, w.Code)
	w = env.head(t, location)
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestPreCheckEndpoint(t *testing.T) {
	env := newUploadTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/admin/precheck",
		strings.NewReader(`{"file_name":"dem1","theme":"dem"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	env.repo.entries["dem1"] = &model.CatalogEntry{FileName: "dem1"}
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/admin/precheck",
		strings.NewReader(`{"file_name":"dem1","theme":"dem"}`))
	req.Header.Set("Content-Type", "application/json")
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"warning"`)
}

func TestRasterPreCheckEndpoint(t *testing.T) {
	env := newUploadTestEnv(t)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/raster/precheck/dem1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":true`)

	env.repo.entries["dem1"] = &model.CatalogEntry{FileName: "dem1"}
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/raster/precheck/dem1", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"exists":true`)

	// names that could escape the storage layout are refused outright
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/raster/precheck/bad..name", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRasterPreCheckSeesFilesOnDisk(t *testing.T) {
	env := newUploadTestEnv(t)

	require.NoError(t, os.MkdirAll(env.layout.RasterRoot()+"/dem", 0o755))
	require.NoError(t, os.WriteFile(env.layout.RasterPath("dem", "dem1"), []byte("x"), 0o644))

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/raster/precheck/dem1?theme=dem", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"exists":true`)
}
