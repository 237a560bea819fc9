package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"

	"gorm.io/gorm"

	"assac-admin-go/internal/apperr"
	"assac-admin-go/internal/model"
	"assac-admin-go/internal/repository"
	"assac-admin-go/pkg/geoserver"
	"assac-admin-go/pkg/log"
	"assac-admin-go/pkg/storage"
)

// CatalogDetail is a catalog entry enriched with the bounding box computed
// from the PostGIS table for vector datasets.
type CatalogDetail struct {
	model.CatalogEntry
	BBox string `json:"bbox,omitempty"`
}

// DeleteRequest identifies a dataset to remove from every system it touched.
type DeleteRequest struct {
	FileName string
	Store    string
	FileType string
	Theme    string
}

// CatalogService covers the catalog-facing admin operations: detail lookup,
// metadata updates, flag toggles and the multi-system delete flow.
type CatalogService interface {
	Get(ctx context.Context, fileName string) (*CatalogDetail, error)
	UpdateMetadata(ctx context.Context, fileName string, meta repository.MetadataUpdate) error
	SetVisibility(ctx context.Context, sn uint, visibility bool) error
	SetEditMode(ctx context.Context, sn uint, editMode bool) error
	Delete(ctx context.Context, workspace string, req DeleteRequest) error
}

type catalogService struct {
	catalogRepo repository.CatalogRepository
	themeRepo   repository.ThemeRepository
	gs          *geoserver.Client
	layout      *storage.Layout
}

// NewCatalogService creates a new CatalogService instance.
func NewCatalogService(catalogRepo repository.CatalogRepository, themeRepo repository.ThemeRepository, gs *geoserver.Client, layout *storage.Layout) CatalogService {
	return &catalogService{
		catalogRepo: catalogRepo,
		themeRepo:   themeRepo,
		gs:          gs,
		layout:      layout,
	}
}

func (s *catalogService) Get(ctx context.Context, fileName string) (*CatalogDetail, error) {
	entry, err := s.catalogRepo.GetByFileName(ctx, fileName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: catalog entry %s", apperr.ErrNotFound, fileName)
		}
		return nil, fmt.Errorf("load catalog entry %s: %w", fileName, err)
	}

	detail := &CatalogDetail{CatalogEntry: *entry}
	if entry.FileType == model.FileTypeVector {
		wkt, err := s.themeRepo.BBox(ctx, entry.Theme, entry.FileName)
		if err != nil {
			log.Warnf("[Get] bbox query failed for %s: %v", fileName, err)
		} else {
			detail.BBox = roundWKT(wkt, 3)
		}
	}
	return detail, nil
}

func (s *catalogService) UpdateMetadata(ctx context.Context, fileName string, meta repository.MetadataUpdate) error {
	return s.catalogRepo.UpdateMetadata(ctx, fileName, meta)
}

func (s *catalogService) SetVisibility(ctx context.Context, sn uint, visibility bool) error {
	return s.catalogRepo.SetVisibility(ctx, sn, visibility)
}

func (s *catalogService) SetEditMode(ctx context.Context, sn uint, editMode bool) error {
	return s.catalogRepo.SetEditMode(ctx, sn, editMode)
}

// Delete removes a dataset from GeoServer, the theme database, disk and the
// catalog, in that order. Every step before the catalog row is best-effort:
// a layer that is already gone must not block the rest of the teardown. The
// catalog delete is authoritative and its failure is the only one reported.
func (s *catalogService) Delete(ctx context.Context, workspace string, req DeleteRequest) error {
	if req.FileName == "" || req.Theme == "" || req.FileType == "" {
		return fmt.Errorf("%w: file_name, theme and file_type are required", apperr.ErrInvalidInput)
	}
	if req.Store == "" {
		req.Store = req.Theme
	}

	switch req.FileType {
	case model.FileTypeVector:
		if err := s.gs.DeleteLayer(ctx, req.FileName); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			log.Warnf("[Delete] layer removal failed for %s: %v", req.FileName, err)
		}
		if err := s.gs.DeleteFeatureType(ctx, workspace, req.Store, req.FileName); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			log.Warnf("[Delete] feature type removal failed for %s: %v", req.FileName, err)
		}
		if err := s.themeRepo.DropTable(ctx, req.Theme, req.FileName); err != nil {
			log.Warnf("[Delete] table drop failed for %s: %v", req.FileName, err)
		}
		zipPath := s.layout.ArchivePath(req.Theme, req.FileName)
		if err := os.Remove(zipPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warnf("[Delete] archive removal failed for %s: %v", zipPath, err)
		}

	case model.FileTypeRaster:
		if err := s.gs.DeleteLayer(ctx, req.FileName); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			log.Warnf("[Delete] layer removal failed for %s: %v", req.FileName, err)
		}
		if err := s.gs.DeleteCoverageStore(ctx, workspace, req.FileName); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			log.Warnf("[Delete] coverage store removal failed for %s: %v", req.FileName, err)
		}
		rasterPath := s.layout.RasterPath(req.Theme, req.FileName)
		if err := os.Remove(rasterPath); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Warnf("[Delete] raster file not found: %s", rasterPath)
			} else {
				log.Warnf("[Delete] raster removal failed for %s: %v", rasterPath, err)
			}
		}

	default:
		return fmt.Errorf("%w: unknown file_type %q", apperr.ErrInvalidInput, req.FileType)
	}

	if err := s.catalogRepo.DeleteByFileName(ctx, req.FileName); err != nil {
		return fmt.Errorf("%w: delete catalog row %s: %v", apperr.ErrDownstream, req.FileName, err)
	}
	log.Infof("[Delete] dataset %q removed", req.FileName)
	return nil
}

var wktNumber = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?`)

// roundWKT rounds every numeric token of a WKT string to the given number
// of decimals, matching what the upload form expects to pre-fill.
func roundWKT(wkt string, decimals int) string {
	return wktNumber.ReplaceAllStringFunc(wkt, func(tok string) string {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return tok
		}
		return strconv.FormatFloat(f, 'f', decimals, 64)
	})
}
