package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"assac-admin-go/internal/repository"
	"assac-admin-go/internal/service"
	"assac-admin-go/pkg/log"
)

// CatalogHandler exposes catalog lookup, metadata editing, flag toggles and
// the delete flow.
type CatalogHandler struct {
	catalogSvc service.CatalogService
	workspace  string
}

// NewCatalogHandler creates a new CatalogHandler instance.
func NewCatalogHandler(catalogSvc service.CatalogService, workspace string) *CatalogHandler {
	return &CatalogHandler{catalogSvc: catalogSvc, workspace: workspace}
}

// Get handles GET /catalog/:file_name.
func (h *CatalogHandler) Get(c *gin.Context) {
	fileName := c.Param("file_name")
	detail, err := h.catalogSvc.Get(c.Request.Context(), fileName)
	if err != nil {
		respondError(c, errStatus(err), "catalog entry not found")
		return
	}
	c.JSON(http.StatusOK, detail)
}

type metadataRequest struct {
	FileName          string `json:"file_name" binding:"required"`
	Title             string `json:"title"`
	SpatialCoverage   string `json:"spatial_coverage"`
	Publisher         string `json:"publisher"`
	PublicAccessLevel string `json:"public_access_level"`
	Citation          string `json:"citation"`
	SourceDate        string `json:"source_date"`
	GroupVisibility   string `json:"group_visibility"`
	DataAbstract      string `json:"data_abstract"`
	AreaOfInterest    string `json:"area_of_interest"`
	MetadataDate      string `json:"metadata_date"`
	DataQuality       string `json:"data_quality"`
	Language          string `json:"language"`
	Projection        string `json:"projection"`
	Scale             string `json:"scale"`
}

// UpdateMetadata handles POST /metadata. Saving the form clears the entry's
// edit mode.
func (h *CatalogHandler) UpdateMetadata(c *gin.Context) {
	var req metadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "file_name is required")
		return
	}

	meta := repository.MetadataUpdate{
		Title:             req.Title,
		SpatialCoverage:   req.SpatialCoverage,
		Publisher:         req.Publisher,
		PublicAccessLevel: req.PublicAccessLevel,
		Citation:          req.Citation,
		GroupVisibility:   req.GroupVisibility,
		DataAbstract:      req.DataAbstract,
		AreaOfInterest:    req.AreaOfInterest,
		DataQuality:       req.DataQuality,
		Language:          req.Language,
		Projection:        req.Projection,
		Scale:             req.Scale,
	}
	var ok bool
	if meta.SourceDate, ok = parseDate(req.SourceDate); !ok {
		respondError(c, http.StatusBadRequest, "source_date must be YYYY-MM-DD")
		return
	}
	if meta.MetadataDate, ok = parseDate(req.MetadataDate); !ok {
		respondError(c, http.StatusBadRequest, "metadata_date must be YYYY-MM-DD")
		return
	}

	if err := h.catalogSvc.UpdateMetadata(c.Request.Context(), req.FileName, meta); err != nil {
		log.Errorf("[UpdateMetadata] update of %q failed: %v", req.FileName, err)
		respondError(c, errStatus(err), "metadata update failed")
		return
	}
	respondSuccess(c, http.StatusOK, "metadata saved", "/admin/catalog/"+req.FileName)
}

type flagRequest struct {
	SN    uint  `json:"sn" binding:"required"`
	Value *bool `json:"value" binding:"required"`
}

// SetVisibility handles POST /visibility.
func (h *CatalogHandler) SetVisibility(c *gin.Context) {
	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "sn and value are required")
		return
	}
	if err := h.catalogSvc.SetVisibility(c.Request.Context(), req.SN, *req.Value); err != nil {
		respondError(c, errStatus(err), "visibility update failed")
		return
	}
	respondSuccess(c, http.StatusOK, "visibility updated", "")
}

// SetEditMode handles POST /editmode.
func (h *CatalogHandler) SetEditMode(c *gin.Context) {
	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "sn and value are required")
		return
	}
	if err := h.catalogSvc.SetEditMode(c.Request.Context(), req.SN, *req.Value); err != nil {
		respondError(c, errStatus(err), "edit mode update failed")
		return
	}
	respondSuccess(c, http.StatusOK, "edit mode updated", "")
}

type deleteRequest struct {
	FileName string `json:"file_name" binding:"required"`
	Store    string `json:"store"`
	FileType string `json:"file_type" binding:"required"`
	Theme    string `json:"theme" binding:"required"`
}

// Delete handles POST /delete: removes a dataset from the map server, the
// theme database or file storage, and finally the catalog.
func (h *CatalogHandler) Delete(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "file_name, file_type and theme are required")
		return
	}

	err := h.catalogSvc.Delete(c.Request.Context(), h.workspace, service.DeleteRequest{
		FileName: req.FileName,
		Store:    req.Store,
		FileType: req.FileType,
		Theme:    req.Theme,
	})
	if err != nil {
		log.Errorf("[Delete] delete of %q failed: %v", req.FileName, err)
		respondError(c, errStatus(err), "delete failed")
		return
	}
	respondSuccess(c, http.StatusOK, "dataset deleted", "/admin")
}

// parseDate accepts an empty string (no date) or YYYY-MM-DD.
func parseDate(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, false
	}
	return &t, true
}
