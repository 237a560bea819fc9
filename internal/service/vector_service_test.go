package service

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assac-admin-go/internal/apperr"
	"assac-admin-go/internal/config"
	"assac-admin-go/internal/model"
	"assac-admin-go/internal/upload"
	"assac-admin-go/pkg/storage"
)

func newVectorFixture(t *testing.T) (*fakeCatalogRepo, *fakeThemeRepo, *storage.Layout, VectorService, string) {
	t.Helper()
	layout, err := storage.NewLayout(t.TempDir())
	require.NoError(t, err)
	store, err := upload.NewFileStore(layout.TempRoot())
	require.NoError(t, err)
	repo := newFakeCatalogRepo()
	themes := &fakeThemeRepo{}
	uploadSvc := NewUploadService(repo, store, layout)
	workDir := t.TempDir()
	svc := NewVectorService(repo, themes, uploadSvc, layout, config.ImportConfig{WorkDir: workDir})
	return repo, themes, layout, svc, workDir
}

func writeZip(t *testing.T, dir string, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, "upload.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestImportRejectsMissingFields(t *testing.T) {
	_, _, _, svc, _ := newVectorFixture(t)
	err := svc.Import(context.Background(), ImportRequest{FileName: "roads"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestImportRejectsNonIntegerSRID(t *testing.T) {
	_, _, _, svc, workDir := newVectorFixture(t)
	err := svc.Import(context.Background(), ImportRequest{
		FileName: "roads", Theme: "dem", SRID: "wgs84",
		ZipPath: filepath.Join(workDir, "x.zip"), OriginalName: "roads.zip",
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestImportRejectsBadNames(t *testing.T) {
	_, _, _, svc, workDir := newVectorFixture(t)
	err := svc.Import(context.Background(), ImportRequest{
		FileName: "roads;drop", Theme: "dem", SRID: "4326",
		ZipPath: filepath.Join(workDir, "x.zip"), OriginalName: "roads.zip",
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestImportRejectsNonZipUpload(t *testing.T) {
	_, _, _, svc, workDir := newVectorFixture(t)
	err := svc.Import(context.Background(), ImportRequest{
		FileName: "roads", Theme: "dem", SRID: "4326",
		ZipPath: filepath.Join(workDir, "x.zip"), OriginalName: "roads.rar",
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestImportRejectsDuplicateName(t *testing.T) {
	repo, _, _, svc, workDir := newVectorFixture(t)
	repo.entries["roads"] = &model.CatalogEntry{FileName: "roads"}

	zipPath := writeZip(t, workDir, map[string]string{
		"roads.shp": "shp", "roads.shx": "shx", "roads.dbf": "dbf",
	})
	err := svc.Import(context.Background(), ImportRequest{
		FileName: "roads", Theme: "dem", SRID: "4326",
		ZipPath: zipPath, OriginalName: "roads.zip",
	})
	assert.ErrorIs(t, err, apperr.ErrDuplicate)

	// uploads are cleaned up on every failure path
	_, statErr := os.Stat(zipPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestImportRejectsIncompleteShapefile(t *testing.T) {
	repo, _, _, svc, workDir := newVectorFixture(t)

	// .dbf missing
	zipPath := writeZip(t, workDir, map[string]string{
		"roads.shp": "shp", "roads.shx": "shx",
	})
	err := svc.Import(context.Background(), ImportRequest{
		FileName: "roads", Theme: "dem", SRID: "4326",
		ZipPath: zipPath, OriginalName: "roads.zip",
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Empty(t, repo.entries, "no catalog row for a rejected package")
}

func TestImportRejectsCorruptZip(t *testing.T) {
	_, _, _, svc, workDir := newVectorFixture(t)
	zipPath := filepath.Join(workDir, "broken.zip")
	require.NoError(t, os.WriteFile(zipPath, []byte("not a zip"), 0o644))

	err := svc.Import(context.Background(), ImportRequest{
		FileName: "roads", Theme: "dem", SRID: "4326",
		ZipPath: zipPath, OriginalName: "roads.zip",
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
