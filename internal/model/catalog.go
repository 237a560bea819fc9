// Package model defines the Go structs mapped to database tables.
package model

import "time"

// File type values stored in catalog.file_type.
const (
	FileTypeVector = "vector"
	FileTypeRaster = "raster"
)

// CatalogEntry is the ORM model for the 'catalog' table, the canonical
// record of a dataset. file_name is globally unique; a row exists if and
// only if the corresponding finalized file (or imported table) exists.
type CatalogEntry struct {
	SN                uint       `gorm:"primaryKey;autoIncrement;column:sn" json:"sn"`
	FileName          string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"file_name"`
	Title             string     `gorm:"type:varchar(100)" json:"title"`
	SpatialCoverage   string     `gorm:"type:varchar(100)" json:"spatial_coverage"`
	FileType          string     `gorm:"type:varchar(15);not null" json:"file_type"`
	Theme             string     `gorm:"type:varchar(30);not null" json:"theme"`
	SRID              string     `gorm:"type:varchar(10);not null" json:"srid"`
	Publisher         string     `gorm:"type:varchar(30)" json:"publisher"`
	Language          string     `gorm:"type:varchar(10)" json:"language"`
	PublicAccessLevel string     `gorm:"type:varchar(20)" json:"public_access_level"`
	Citation          string     `gorm:"type:text" json:"citation"`
	SourceDate        *time.Time `json:"source_date"`
	GroupVisibility   string     `gorm:"type:text" json:"group_visibility"`
	DataAbstract      string     `gorm:"type:text" json:"data_abstract"`
	AreaOfInterest    string     `gorm:"type:varchar(20)" json:"area_of_interest"`
	MetadataDate      *time.Time `json:"metadata_date"`
	DataQuality       string     `gorm:"type:text" json:"data_quality"`
	Projection        string     `gorm:"type:varchar(20)" json:"projection"`
	Scale             string     `gorm:"type:varchar(15)" json:"scale"`
	Visibility        bool       `gorm:"not null;default:false" json:"visibility"`
	IsPublished       bool       `gorm:"not null;default:false" json:"is_published"`
	EditMode          bool       `gorm:"not null;default:true" json:"edit_mode"`
}

// TableName maps the model onto the original table name.
func (CatalogEntry) TableName() string {
	return "catalog"
}
