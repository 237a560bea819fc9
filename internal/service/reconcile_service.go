package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"assac-admin-go/internal/model"
	"assac-admin-go/internal/repository"
	"assac-admin-go/pkg/log"
	"assac-admin-go/pkg/storage"
)

// ReconcileReport summarizes one consistency sweep over the raster catalog.
type ReconcileReport struct {
	Checked      int
	MissingFiles []string
	OrphanFiles  []string
}

// ReconcileService periodically cross-checks catalog rows against the files
// on disk. It only reports; cleanup of either side is an operator decision.
type ReconcileService interface {
	Sweep(ctx context.Context) (*ReconcileReport, error)
	Run(ctx context.Context, interval time.Duration)
}

type reconcileService struct {
	catalogRepo repository.CatalogRepository
	layout      *storage.Layout
}

// NewReconcileService creates a new ReconcileService instance.
func NewReconcileService(catalogRepo repository.CatalogRepository, layout *storage.Layout) ReconcileService {
	return &reconcileService{catalogRepo: catalogRepo, layout: layout}
}

func (s *reconcileService) Sweep(ctx context.Context) (*ReconcileReport, error) {
	entries, err := s.catalogRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{}
	known := make(map[string]struct{})
	for _, e := range entries {
		if e.FileType != model.FileTypeRaster {
			continue
		}
		report.Checked++
		path := s.layout.RasterPath(e.Theme, e.FileName)
		known[path] = struct{}{}
		if _, err := os.Stat(path); err != nil {
			report.MissingFiles = append(report.MissingFiles, e.FileName)
			log.Errorf("[Sweep] catalog row %q has no file at %s", e.FileName, path)
		}
	}

	// files on disk with no catalog row
	walkErr := filepath.WalkDir(s.layout.RasterRoot(), func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".tif") {
			return nil
		}
		if _, ok := known[path]; !ok {
			report.OrphanFiles = append(report.OrphanFiles, path)
			log.Warnf("[Sweep] file %s has no catalog row", path)
		}
		return nil
	})
	if walkErr != nil {
		log.Warnf("[Sweep] raster directory walk failed: %v", walkErr)
	}

	log.Infof("[Sweep] checked %d raster entries, %d missing files, %d orphan files",
		report.Checked, len(report.MissingFiles), len(report.OrphanFiles))
	return report, nil
}

func (s *reconcileService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				log.Errorf("[Sweep] consistency sweep failed: %v", err)
			}
		}
	}
}
