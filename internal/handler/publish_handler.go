package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"assac-admin-go/internal/apperr"
	"assac-admin-go/internal/service"
	"assac-admin-go/pkg/log"
)

// PublishHandler exposes the map-server publishing endpoints.
type PublishHandler struct {
	publishSvc service.PublishService
	workspace  string
}

// NewPublishHandler creates a new PublishHandler instance.
func NewPublishHandler(publishSvc service.PublishService, workspace string) *PublishHandler {
	return &PublishHandler{publishSvc: publishSvc, workspace: workspace}
}

type publishRequest struct {
	FileName  string `json:"file_name" binding:"required"`
	Workspace string `json:"workspace"`
	Theme     string `json:"theme" binding:"required"`
	Title     string `json:"title"`
}

// workspaceOr returns the request's workspace, falling back to the
// configured default when the caller left it out.
func (h *PublishHandler) workspaceOr(req publishRequest) string {
	if req.Workspace != "" {
		return req.Workspace
	}
	return h.workspace
}

// PublishVector handles POST /publish: registers an imported PostGIS table
// as a feature type on the map server.
func (h *PublishHandler) PublishVector(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "file_name and theme are required")
		return
	}

	err := h.publishSvc.PublishVector(c.Request.Context(), req.FileName, h.workspaceOr(req), req.Theme, req.Title)
	if err != nil {
		h.respondPublishError(c, req.FileName, err)
		return
	}
	respondSuccess(c, http.StatusCreated, "layer published", "/admin/catalog/"+req.FileName)
}

// PublishRaster handles POST /publish-tiff: uploads a stored GeoTIFF to the
// map server as a coverage.
func (h *PublishHandler) PublishRaster(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "file_name and theme are required")
		return
	}

	err := h.publishSvc.PublishRaster(c.Request.Context(), req.FileName, h.workspaceOr(req), req.Theme)
	if err != nil {
		h.respondPublishError(c, req.FileName, err)
		return
	}
	respondSuccess(c, http.StatusCreated, "coverage published", "/admin/catalog/"+req.FileName)
}

func (h *PublishHandler) respondPublishError(c *gin.Context, fileName string, err error) {
	switch {
	case errors.Is(err, apperr.ErrWorkspaceNotFound):
		respondError(c, http.StatusNotFound, "workspace does not exist on the map server")
	case errors.Is(err, apperr.ErrStoreNotFound):
		respondError(c, http.StatusNotFound, "data store does not exist on the map server")
	case errors.Is(err, apperr.ErrSourceFileMissing):
		respondError(c, http.StatusNotFound, "source file is missing from storage")
	case errors.Is(err, apperr.ErrAlreadyPublished):
		respondWarning(c, http.StatusBadRequest, "layer is already published")
	case errors.Is(err, apperr.ErrDuplicate):
		respondError(c, http.StatusConflict, "a store with this name already exists")
	case errors.Is(err, apperr.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, "invalid publish parameters")
	default:
		log.Errorf("[Publish] publishing %q failed: %v", fileName, err)
		respondError(c, errStatus(err), "publishing failed")
	}
}
