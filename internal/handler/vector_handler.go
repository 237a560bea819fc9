package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"assac-admin-go/internal/service"
	"assac-admin-go/pkg/log"
)

// VectorHandler handles shapefile package uploads.
type VectorHandler struct {
	vectorSvc service.VectorService
	workDir   string
}

// NewVectorHandler creates a new VectorHandler instance.
func NewVectorHandler(vectorSvc service.VectorService, workDir string) *VectorHandler {
	return &VectorHandler{vectorSvc: vectorSvc, workDir: workDir}
}

// Upload handles POST /shpuploads: a multipart form carrying a zipped
// shapefile plus its target file_name, theme and srid. The whole import runs
// before the response, so a 201 means the table and catalog row exist.
func (h *VectorHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("uploaded_file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "uploaded_file is required")
		return
	}

	req := service.ImportRequest{
		FileName:     c.PostForm("file_name"),
		Theme:        c.PostForm("theme"),
		SRID:         c.PostForm("srid"),
		OriginalName: file.Filename,
	}

	if err := os.MkdirAll(h.workDir, 0o755); err != nil {
		log.Errorf("[Upload] cannot create work dir %s: %v", h.workDir, err)
		respondError(c, http.StatusInternalServerError, "could not store uploaded file")
		return
	}
	req.ZipPath = filepath.Join(h.workDir, uuid.NewString()+".zip")
	if err := c.SaveUploadedFile(file, req.ZipPath); err != nil {
		log.Errorf("[Upload] cannot save uploaded file: %v", err)
		respondError(c, http.StatusInternalServerError, "could not store uploaded file")
		return
	}

	if err := h.vectorSvc.Import(c.Request.Context(), req); err != nil {
		code := errStatus(err)
		if code == http.StatusConflict {
			respondWarning(c, code, "a dataset with this file name already exists")
			return
		}
		log.Errorf("[Upload] shapefile import of %q failed: %v", req.FileName, err)
		respondError(c, code, "shapefile import failed")
		return
	}

	respondSuccess(c, http.StatusCreated, "shapefile imported", "/admin/catalog/"+req.FileName)
}
