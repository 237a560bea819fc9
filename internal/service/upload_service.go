package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"assac-admin-go/internal/apperr"
	"assac-admin-go/internal/model"
	"assac-admin-go/internal/repository"
	"assac-admin-go/internal/upload"
	"assac-admin-go/pkg/log"
	"assac-admin-go/pkg/storage"
)

// UploadService guards dataset names and reconciles finished upload
// sessions into the catalog.
type UploadService interface {
	// CheckDuplicate reports whether a dataset name is already taken,
	// checking the theme-scoped final storage path first and the catalog
	// row second.
	CheckDuplicate(ctx context.Context, fileName, theme string) (bool, error)

	// PreCheck is CheckDuplicate expressed as an error: apperr.ErrDuplicate
	// when the name exists.
	PreCheck(ctx context.Context, fileName, theme string) error

	// Finalize transitions a finished session into a catalog row plus a
	// stored file, or safely abandons it. It never leaves a row without a
	// file or a file without a row behind, and it removes the session from
	// the store in every outcome except a failed catalog insert.
	Finalize(ctx context.Context, sess *upload.Session) error
}

type uploadService struct {
	catalogRepo repository.CatalogRepository
	store       upload.Store
	layout      *storage.Layout
}

// NewUploadService creates a new UploadService instance.
func NewUploadService(catalogRepo repository.CatalogRepository, store upload.Store, layout *storage.Layout) UploadService {
	return &uploadService{
		catalogRepo: catalogRepo,
		store:       store,
		layout:      layout,
	}
}

// CheckDuplicate checks the filesystem before the database. The filesystem
// hit is cheap and catches files that predate the catalog; the database is
// the source of truth for names that finalized normally.
func (s *uploadService) CheckDuplicate(ctx context.Context, fileName, theme string) (bool, error) {
	if s.layout.RasterExists(theme, fileName) {
		return true, nil
	}
	exists, err := s.catalogRepo.ExistsByFileName(ctx, fileName)
	if err != nil {
		return false, fmt.Errorf("check catalog for %s: %w", fileName, err)
	}
	return exists, nil
}

func (s *uploadService) PreCheck(ctx context.Context, fileName, theme string) error {
	exists, err := s.CheckDuplicate(ctx, fileName, theme)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", apperr.ErrDuplicate, fileName)
	}
	return nil
}

// Finalize implements the reconciliation algorithm. The created-at check
// already validated the metadata and ran a duplicate pre-check, but both are
// repeated here: the pre-check is not authoritative under concurrent
// sessions for the same name, and the last writer must lose.
func (s *uploadService) Finalize(ctx context.Context, sess *upload.Session) error {
	fileName := sess.FileName()
	theme := sess.Theme()

	if fileName == "" || theme == "" || !upload.FileNamePattern.MatchString(fileName) {
		log.Warnf("[Finalize] session %s has invalid metadata (file_name=%q theme=%q), discarding upload",
			sess.ID, fileName, theme)
		s.discard(ctx, sess)
		return nil
	}

	exists, err := s.CheckDuplicate(ctx, fileName, theme)
	if err != nil {
		return fmt.Errorf("%w: authoritative duplicate check: %v", apperr.ErrDownstream, err)
	}
	if exists {
		// The upload streamed successfully from the client's point of view,
		// but it lost the race for the name. Discard the bytes rather than
		// corrupt catalog/filesystem consistency; this is not an error to
		// the transfer layer.
		log.Warnf("[Finalize] duplicate dataset %q detected at finalization, discarding upload session %s",
			fileName, sess.ID)
		s.discard(ctx, sess)
		return nil
	}

	finalPath := s.layout.RasterPath(theme, fileName)
	entry := &model.CatalogEntry{
		FileName:    fileName,
		FileType:    model.FileTypeRaster,
		Theme:       theme,
		SRID:        sess.SRID(),
		Visibility:  false,
		IsPublished: false,
		EditMode:    true,
	}

	// DB insert before file move: the catalog stays the single source of
	// truth for name existence, at the cost of a narrow window where the
	// row exists and the file does not. That window is an inconsistency,
	// not a rollback, because other readers may already have seen the row.
	err = runSaga(ctx, "Finalize", []sagaStep{
		{
			name: "insert catalog row",
			run: func(ctx context.Context) error {
				return s.catalogRepo.Create(ctx, entry)
			},
			compensate: nil,
		},
		{
			name: "move blob into catalog storage",
			run: func(ctx context.Context) error {
				if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
					return err
				}
				return os.Rename(sess.Path, finalPath)
			},
		},
	})
	if err != nil {
		if errors.Is(err, apperr.ErrInconsistency) {
			// row without file: leave the temp blob in place as the only
			// remaining copy of the data, operators re-drive the move
			return err
		}
		if errors.Is(err, apperr.ErrDuplicate) {
			// the pre-check above raced another finalizer; the unique index
			// rejected our insert, so the name belongs to the winner
			log.Warnf("[Finalize] lost insert race for dataset %q, discarding upload session %s",
				fileName, sess.ID)
			s.discard(ctx, sess)
			return nil
		}
		// insert failed: nothing durable happened, keep the session so the
		// client can retry the final chunk
		return fmt.Errorf("%w: %v", apperr.ErrDownstream, err)
	}

	if err := s.store.Remove(ctx, sess.ID); err != nil {
		log.Warnf("[Finalize] failed to remove finalized session %s: %v", sess.ID, err)
	}
	log.Infof("[Finalize] dataset %q finalized at %s", fileName, finalPath)
	return nil
}

// discard drops the temp bytes and forgets the session.
func (s *uploadService) discard(ctx context.Context, sess *upload.Session) {
	if err := os.Remove(sess.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("[Finalize] failed to remove temp blob %s: %v", sess.Path, err)
	}
	if err := s.store.Remove(ctx, sess.ID); err != nil {
		log.Warnf("[Finalize] failed to remove session %s: %v", sess.ID, err)
	}
}
