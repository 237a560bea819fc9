package repository

import (
	"context"
	"fmt"
	"regexp"

	"gorm.io/gorm"
)

// safeIdent guards the identifiers that get interpolated into raw SQL below.
// Table names come from catalog.file_name which already matches this, but
// the repository re-checks rather than trusting its callers.
var safeIdent = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ThemeRepository runs queries against the per-theme PostGIS databases where
// imported shapefile tables live.
type ThemeRepository interface {
	// DropTable drops an imported vector table. Missing tables are not an
	// error; the delete flow is best-effort up to the catalog row.
	DropTable(ctx context.Context, theme, table string) error

	// BBox returns the WKT envelope of the table's geometry extent.
	BBox(ctx context.Context, theme, table string) (string, error)
}

// themeDBResolver returns the handle for a theme database, nil if unknown.
type themeDBResolver func(theme string) *gorm.DB

type themeRepository struct {
	resolve themeDBResolver
}

// NewThemeRepository creates a ThemeRepository backed by the given resolver.
func NewThemeRepository(resolve func(theme string) *gorm.DB) ThemeRepository {
	return &themeRepository{resolve: resolve}
}

func (r *themeRepository) db(theme string) (*gorm.DB, error) {
	if !safeIdent.MatchString(theme) {
		return nil, fmt.Errorf("invalid theme identifier %q", theme)
	}
	db := r.resolve(theme)
	if db == nil {
		return nil, fmt.Errorf("no database configured for theme %q", theme)
	}
	return db, nil
}

func (r *themeRepository) DropTable(ctx context.Context, theme, table string) error {
	if !safeIdent.MatchString(table) {
		return fmt.Errorf("invalid table identifier %q", table)
	}
	db, err := r.db(theme)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %q CASCADE`, table)).Error
}

func (r *themeRepository) BBox(ctx context.Context, theme, table string) (string, error) {
	if !safeIdent.MatchString(table) {
		return "", fmt.Errorf("invalid table identifier %q", table)
	}
	db, err := r.db(theme)
	if err != nil {
		return "", err
	}
	var wkt string
	query := fmt.Sprintf(`SELECT ST_AsText(ST_Envelope(ST_Extent(geom))) FROM %q`, table)
	if err := db.WithContext(ctx).Raw(query).Scan(&wkt).Error; err != nil {
		return "", err
	}
	return wkt, nil
}
