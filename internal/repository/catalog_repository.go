// Package repository defines the interfaces and implementations for data
// exchange with the databases.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"assac-admin-go/internal/apperr"
	"assac-admin-go/internal/model"
)

// CatalogRepository persists catalog entries.
type CatalogRepository interface {
	Create(ctx context.Context, entry *model.CatalogEntry) error
	GetByFileName(ctx context.Context, fileName string) (*model.CatalogEntry, error)
	ExistsByFileName(ctx context.Context, fileName string) (bool, error)
	DeleteByFileName(ctx context.Context, fileName string) error
	FindAll(ctx context.Context) ([]model.CatalogEntry, error)

	// MarkPublished sets visibility and is_published together inside one
	// transaction. The external registration must already have succeeded.
	MarkPublished(ctx context.Context, fileName string) error

	UpdateMetadata(ctx context.Context, fileName string, meta MetadataUpdate) error
	SetVisibility(ctx context.Context, sn uint, visibility bool) error
	SetEditMode(ctx context.Context, sn uint, editMode bool) error
}

// MetadataUpdate carries the descriptive columns set by the metadata form.
// Applying it always clears edit_mode.
type MetadataUpdate struct {
	Title             string
	SpatialCoverage   string
	Publisher         string
	PublicAccessLevel string
	Citation          string
	SourceDate        *time.Time
	GroupVisibility   string
	DataAbstract      string
	AreaOfInterest    string
	MetadataDate      *time.Time
	DataQuality       string
	Language          string
	Projection        string
	Scale             string
}

// catalogRepository is the GORM implementation of CatalogRepository.
type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new CatalogRepository instance.
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) Create(ctx context.Context, entry *model.CatalogEntry) error {
	err := r.db.WithContext(ctx).Create(entry).Error
	if err != nil && isUniqueViolation(err) {
		// two finalizers can pass the duplicate pre-check before either
		// inserts; the unique index is the final arbiter
		return fmt.Errorf("%w: %s", apperr.ErrDuplicate, entry.FileName)
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *catalogRepository) GetByFileName(ctx context.Context, fileName string) (*model.CatalogEntry, error) {
	var entry model.CatalogEntry
	err := r.db.WithContext(ctx).Where("file_name = ?", fileName).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *catalogRepository) ExistsByFileName(ctx context.Context, fileName string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CatalogEntry{}).
		Where("file_name = ?", fileName).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *catalogRepository) DeleteByFileName(ctx context.Context, fileName string) error {
	return r.db.WithContext(ctx).Where("file_name = ?", fileName).Delete(&model.CatalogEntry{}).Error
}

func (r *catalogRepository) FindAll(ctx context.Context) ([]model.CatalogEntry, error) {
	var entries []model.CatalogEntry
	err := r.db.WithContext(ctx).Order("sn asc").Find(&entries).Error
	return entries, err
}

func (r *catalogRepository) MarkPublished(ctx context.Context, fileName string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&model.CatalogEntry{}).
			Where("file_name = ?", fileName).
			Updates(map[string]interface{}{"visibility": true, "is_published": true}).Error
	})
}

func (r *catalogRepository) UpdateMetadata(ctx context.Context, fileName string, meta MetadataUpdate) error {
	return r.db.WithContext(ctx).Model(&model.CatalogEntry{}).
		Where("file_name = ?", fileName).
		Updates(map[string]interface{}{
			"title":               meta.Title,
			"spatial_coverage":    meta.SpatialCoverage,
			"publisher":           meta.Publisher,
			"public_access_level": meta.PublicAccessLevel,
			"citation":            meta.Citation,
			"source_date":         meta.SourceDate,
			"group_visibility":    meta.GroupVisibility,
			"data_abstract":       meta.DataAbstract,
			"area_of_interest":    meta.AreaOfInterest,
			"metadata_date":       meta.MetadataDate,
			"data_quality":        meta.DataQuality,
			"language":            meta.Language,
			"projection":          meta.Projection,
			"scale":               meta.Scale,
			"edit_mode":           false,
		}).Error
}

func (r *catalogRepository) SetVisibility(ctx context.Context, sn uint, visibility bool) error {
	return r.db.WithContext(ctx).Model(&model.CatalogEntry{}).
		Where("sn = ?", sn).
		Update("visibility", visibility).Error
}

func (r *catalogRepository) SetEditMode(ctx context.Context, sn uint, editMode bool) error {
	return r.db.WithContext(ctx).Model(&model.CatalogEntry{}).
		Where("sn = ?", sn).
		Update("edit_mode", editMode).Error
}
