package service

import (
	"context"
	"errors"
	"fmt"
	"os"

	"assac-admin-go/internal/apperr"
	"assac-admin-go/internal/repository"
	"assac-admin-go/internal/upload"
	"assac-admin-go/pkg/geoserver"
	"assac-admin-go/pkg/storage"
)

// PublishService pushes finalized datasets to GeoServer and flips the
// catalog flags only after GeoServer has confirmed the registration.
type PublishService interface {
	PublishVector(ctx context.Context, fileName, workspace, theme, title string) error
	PublishRaster(ctx context.Context, fileName, workspace, theme string) error
}

type publishService struct {
	catalogRepo repository.CatalogRepository
	gs          *geoserver.Client
	layout      *storage.Layout
}

// NewPublishService creates a new PublishService instance.
func NewPublishService(catalogRepo repository.CatalogRepository, gs *geoserver.Client, layout *storage.Layout) PublishService {
	return &publishService{catalogRepo: catalogRepo, gs: gs, layout: layout}
}

func validatePublishNames(names ...string) error {
	for _, n := range names {
		if n == "" || !upload.FileNamePattern.MatchString(n) {
			return fmt.Errorf("%w: invalid name %q", apperr.ErrInvalidInput, n)
		}
	}
	return nil
}

// PublishVector registers a feature type for an imported table. The
// datastore is named after the theme, matching the import pipeline.
func (s *publishService) PublishVector(ctx context.Context, fileName, workspace, theme, title string) error {
	if err := validatePublishNames(fileName, workspace, theme); err != nil {
		return err
	}
	store := theme

	if err := s.gs.WorkspaceExists(ctx, workspace); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("%w: %s", apperr.ErrWorkspaceNotFound, workspace)
		}
		return err
	}
	if err := s.gs.DatastoreExists(ctx, workspace, store); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("%w: datastore %s in workspace %s", apperr.ErrStoreNotFound, store, workspace)
		}
		return err
	}
	exists, err := s.gs.FeatureTypeExists(ctx, workspace, store, fileName)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: feature type %s", apperr.ErrAlreadyPublished, fileName)
	}

	// The external registration is the source of truth; the catalog update
	// follows it and never the reverse. A failed update after a successful
	// registration is a divergence, reported and not retried.
	return runSaga(ctx, "PublishVector", []sagaStep{
		{
			name: "register feature type",
			run: func(ctx context.Context) error {
				return s.gs.CreateFeatureType(ctx, workspace, store, fileName, title)
			},
			compensate: nil,
		},
		{
			name: "mark catalog entry published",
			run: func(ctx context.Context) error {
				return s.catalogRepo.MarkPublished(ctx, fileName)
			},
		},
	})
}

// PublishRaster streams the finalized GeoTIFF into a coverage store named
// after the dataset.
func (s *publishService) PublishRaster(ctx context.Context, fileName, workspace, theme string) error {
	if err := validatePublishNames(fileName, workspace, theme); err != nil {
		return err
	}

	if err := s.gs.WorkspaceExists(ctx, workspace); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("%w: %s", apperr.ErrWorkspaceNotFound, workspace)
		}
		return err
	}

	rasterPath := s.layout.RasterPath(theme, fileName)
	f, err := os.Open(rasterPath)
	if err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrSourceFileMissing, rasterPath)
	}
	defer f.Close()

	return runSaga(ctx, "PublishRaster", []sagaStep{
		{
			name: "create coverage store",
			run: func(ctx context.Context) error {
				return s.gs.UploadCoverage(ctx, workspace, fileName, fileName, f)
			},
			compensate: nil,
		},
		{
			name: "mark catalog entry published",
			run: func(ctx context.Context) error {
				return s.catalogRepo.MarkPublished(ctx, fileName)
			},
		},
	})
}
