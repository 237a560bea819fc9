package database

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"assac-admin-go/pkg/log"
)

// DB is the catalog database handle.
var DB *gorm.DB

// themeDBs holds one handle per theme database. Shapefile imports land in
// these databases, so DROP TABLE and bbox queries must go through them
// rather than the catalog connection.
var themeDBs map[string]*gorm.DB

// InitPostgres connects to the catalog database and configures its pool.
func InitPostgres(dsn string) {
	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect catalog database", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("catalog database connected successfully")
}

// InitThemeDBs opens one connection per configured theme database.
func InitThemeDBs(dsns map[string]string) {
	themeDBs = make(map[string]*gorm.DB, len(dsns))
	for theme, dsn := range dsns {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to connect theme database %q: %v", theme, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatalf("failed to get sql.DB for theme %q: %v", theme, err)
		}
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(time.Hour)
		themeDBs[theme] = db
	}
	log.Infof("connected %d theme databases", len(themeDBs))
}

// ThemeDB returns the handle for a theme database, or nil if the theme is
// not configured.
func ThemeDB(theme string) *gorm.DB {
	return themeDBs[theme]
}
