// Package storage manages the on-disk layout of the catalog.
//
// Everything lives under one root:
//
//	<root>/raster_catalog/<theme>/<file_name>.tif   finalized rasters
//	<root>/catalog/<theme>/<file_name>.zip          archived vector sources
//	<root>/tempuploads/<theme>/                     partial resumable uploads
//
// GeoServer registers coverages directly from these paths, so the layout is
// part of the external contract and must not change shape.
package storage

import (
	"os"
	"path/filepath"
)

// Layout resolves catalog paths below a fixed root directory.
type Layout struct {
	root string
}

// NewLayout creates a Layout rooted at root and ensures the top-level
// directories exist.
func NewLayout(root string) (*Layout, error) {
	l := &Layout{root: root}
	for _, dir := range []string{l.RasterRoot(), l.ArchiveRoot(), l.TempRoot()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Root returns the layout root directory.
func (l *Layout) Root() string { return l.root }

// RasterRoot returns the directory holding finalized raster files.
func (l *Layout) RasterRoot() string {
	return filepath.Join(l.root, "raster_catalog")
}

// ArchiveRoot returns the directory holding archived vector source packages.
func (l *Layout) ArchiveRoot() string {
	return filepath.Join(l.root, "catalog")
}

// TempRoot returns the directory holding partial resumable uploads.
func (l *Layout) TempRoot() string {
	return filepath.Join(l.root, "tempuploads")
}

// RasterPath returns the canonical path of a finalized raster.
func (l *Layout) RasterPath(theme, fileName string) string {
	return filepath.Join(l.RasterRoot(), theme, fileName+".tif")
}

// ArchivePath returns the canonical path of an archived vector ZIP.
func (l *Layout) ArchivePath(theme, fileName string) string {
	return filepath.Join(l.ArchiveRoot(), theme, fileName+".zip")
}

// TempDir returns the partial-upload directory for a theme.
func (l *Layout) TempDir(theme string) string {
	return filepath.Join(l.TempRoot(), theme)
}

// RasterExists reports whether a finalized raster is present on disk.
func (l *Layout) RasterExists(theme, fileName string) bool {
	_, err := os.Stat(l.RasterPath(theme, fileName))
	return err == nil
}
