package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"assac-admin-go/internal/service"
	"assac-admin-go/internal/upload"
	"assac-admin-go/pkg/log"
)

const tusVersion = "1.0.0"

// UploadHandler implements the resumable transfer endpoints for GeoTIFF
// uploads, following the tus protocol: create, patch, head, terminate.
type UploadHandler struct {
	store     upload.Store
	uploadSvc service.UploadService
	maxSize   int64
}

// NewUploadHandler creates a new UploadHandler instance.
func NewUploadHandler(store upload.Store, uploadSvc service.UploadService, maxSize int64) *UploadHandler {
	return &UploadHandler{store: store, uploadSvc: uploadSvc, maxSize: maxSize}
}

// Create handles POST /tiffuploads: allocates a new upload session and
// answers 201 with its Location. The duplicate check here is advisory; the
// authoritative one runs again at finalization.
func (h *UploadHandler) Create(c *gin.Context) {
	c.Header("Tus-Resumable", tusVersion)

	size, err := strconv.ParseInt(c.GetHeader("Upload-Length"), 10, 64)
	if err != nil || size <= 0 {
		respondError(c, http.StatusBadRequest, "Upload-Length header must be a positive integer")
		return
	}
	if h.maxSize > 0 && size > h.maxSize {
		respondError(c, http.StatusRequestEntityTooLarge, "declared upload size exceeds the allowed maximum")
		return
	}

	meta, err := upload.ParseMetadata(c.GetHeader("Upload-Metadata"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "malformed Upload-Metadata header")
		return
	}
	fileName, theme := meta[upload.MetaFileName], meta[upload.MetaTheme]
	if !upload.FileNamePattern.MatchString(fileName) || !upload.FileNamePattern.MatchString(theme) {
		respondError(c, http.StatusBadRequest, "metadata must include a valid file_name and theme")
		return
	}

	if err := h.uploadSvc.PreCheck(c.Request.Context(), fileName, theme); err != nil {
		log.Warnf("[Create] precheck rejected %s/%s: %v", theme, fileName, err)
		respondError(c, errStatus(err), "a dataset with this file name already exists")
		return
	}

	sess, err := h.store.Create(c.Request.Context(), size, meta)
	if err != nil {
		log.Errorf("[Create] session allocation failed: %v", err)
		respondError(c, http.StatusInternalServerError, "could not create upload session")
		return
	}

	log.Infof("[Create] upload session %s created for %s/%s (%d bytes)", sess.ID, theme, fileName, size)
	c.Header("Location", fmt.Sprintf("%s/%s", c.Request.URL.Path, sess.ID))
	c.Header("Upload-Offset", "0")
	c.Status(http.StatusCreated)
}

// Patch handles PATCH /tiffuploads/:id: appends one chunk at the declared
// offset. When the chunk completes the upload, finalization runs before the
// response is written, so a 204 on the last chunk means the dataset is live.
func (h *UploadHandler) Patch(c *gin.Context) {
	c.Header("Tus-Resumable", tusVersion)
	id := c.Param("id")

	if ct := c.ContentType(); ct != "application/offset+octet-stream" {
		respondError(c, http.StatusUnsupportedMediaType, "Content-Type must be application/offset+octet-stream")
		return
	}
	offset, err := strconv.ParseInt(c.GetHeader("Upload-Offset"), 10, 64)
	if err != nil || offset < 0 {
		respondError(c, http.StatusBadRequest, "Upload-Offset header must be a non-negative integer")
		return
	}

	newOffset, err := h.store.Append(c.Request.Context(), id, offset, c.Request.Body)
	if err != nil {
		h.respondStoreError(c, id, err)
		return
	}

	sess, err := h.store.Get(c.Request.Context(), id)
	if err == nil && sess.State == upload.StateFinished {
		if err := h.uploadSvc.Finalize(c.Request.Context(), sess); err != nil {
			log.Errorf("[Patch] finalization of session %s failed: %v", id, err)
			respondError(c, errStatus(err), "upload received but finalization failed")
			return
		}
	}

	c.Header("Upload-Offset", strconv.FormatInt(newOffset, 10))
	c.Status(http.StatusNoContent)
}

// Head handles HEAD /tiffuploads/:id: reports the current offset so a client
// can resume. Responses must never be cached.
func (h *UploadHandler) Head(c *gin.Context) {
	c.Header("Tus-Resumable", tusVersion)
	c.Header("Cache-Control", "no-store")

	sess, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Status(errStatus(err))
		return
	}

	c.Header("Upload-Offset", strconv.FormatInt(sess.Offset, 10))
	c.Header("Upload-Length", strconv.FormatInt(sess.Size, 10))
	if len(sess.MetaData) > 0 {
		c.Header("Upload-Metadata", upload.EncodeMetadata(sess.MetaData))
	}
	c.Status(http.StatusOK)
}

// Terminate handles DELETE /tiffuploads/:id: abandons the session and
// reclaims its partial bytes. Repeating the call is harmless.
func (h *UploadHandler) Terminate(c *gin.Context) {
	c.Header("Tus-Resumable", tusVersion)
	id := c.Param("id")

	if err := h.store.Terminate(c.Request.Context(), id); err != nil {
		h.respondStoreError(c, id, err)
		return
	}
	log.Infof("[Terminate] upload session %s terminated", id)
	c.Status(http.StatusNoContent)
}

// PreCheckRaster handles GET /raster/precheck/:fileName: the pre-flight
// duplicate lookup the upload form fires before any bytes move. Answers
// 200 {"ok":true} when the name is free and 409 {"exists":true} when taken.
// An optional ?theme= narrows the filesystem check to that theme.
func (h *UploadHandler) PreCheckRaster(c *gin.Context) {
	fileName := c.Param("fileName")
	if !upload.FileNamePattern.MatchString(fileName) {
		respondError(c, http.StatusBadRequest, "file name may only contain letters, digits and underscores")
		return
	}

	exists, err := h.uploadSvc.CheckDuplicate(c.Request.Context(), fileName, c.Query("theme"))
	if err != nil {
		log.Errorf("[PreCheckRaster] duplicate check failed for %s: %v", fileName, err)
		respondError(c, http.StatusBadGateway, "duplicate check failed")
		return
	}
	if exists {
		c.JSON(http.StatusConflict, gin.H{"exists": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PreCheck handles POST /precheck: lets the frontend reject a duplicate file
// name before any bytes move.
func (h *UploadHandler) PreCheck(c *gin.Context) {
	var req struct {
		FileName string `json:"file_name" binding:"required"`
		Theme    string `json:"theme" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "file_name and theme are required")
		return
	}
	if !upload.FileNamePattern.MatchString(req.FileName) || !upload.FileNamePattern.MatchString(req.Theme) {
		respondError(c, http.StatusBadRequest, "file_name and theme may only contain letters, digits and underscores")
		return
	}

	if err := h.uploadSvc.PreCheck(c.Request.Context(), req.FileName, req.Theme); err != nil {
		if errStatus(err) == http.StatusConflict {
			respondWarning(c, http.StatusConflict, "a dataset with this file name already exists")
			return
		}
		log.Errorf("[PreCheck] duplicate check failed for %s/%s: %v", req.Theme, req.FileName, err)
		respondError(c, errStatus(err), "duplicate check failed")
		return
	}
	respondSuccess(c, http.StatusOK, "file name is available", "")
}

func (h *UploadHandler) respondStoreError(c *gin.Context, id string, err error) {
	switch errStatus(err) {
	case http.StatusNotFound:
		respondError(c, http.StatusNotFound, "unknown upload session")
	case http.StatusGone:
		respondError(c, http.StatusGone, "upload session was terminated")
	case http.StatusConflict:
		respondError(c, http.StatusConflict, "upload offset does not match")
	case http.StatusBadRequest:
		respondError(c, http.StatusBadRequest, "request body exceeds declared upload size")
	default:
		log.Errorf("[Upload] session %s store error: %v", id, err)
		respondError(c, http.StatusInternalServerError, "upload storage error")
	}
}
