package service

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"assac-admin-go/internal/apperr"
	"assac-admin-go/internal/config"
	"assac-admin-go/internal/model"
	"assac-admin-go/internal/repository"
	"assac-admin-go/internal/upload"
	"assac-admin-go/pkg/log"
	"assac-admin-go/pkg/storage"
)

// ImportRequest describes one shapefile import.
type ImportRequest struct {
	FileName     string
	Theme        string
	SRID         string
	ZipPath      string
	OriginalName string
}

// VectorService imports shapefile packages into a theme database and the
// catalog. The heavy lifting is done by shp2pgsql piped into psql, exactly
// like the operator would do by hand.
type VectorService interface {
	Import(ctx context.Context, req ImportRequest) error
}

type vectorService struct {
	catalogRepo repository.CatalogRepository
	themeRepo   repository.ThemeRepository
	uploadSvc   UploadService
	layout      *storage.Layout
	cfg         config.ImportConfig
}

// NewVectorService creates a new VectorService instance.
func NewVectorService(catalogRepo repository.CatalogRepository, themeRepo repository.ThemeRepository, uploadSvc UploadService, layout *storage.Layout, cfg config.ImportConfig) VectorService {
	return &vectorService{
		catalogRepo: catalogRepo,
		themeRepo:   themeRepo,
		uploadSvc:   uploadSvc,
		layout:      layout,
		cfg:         cfg,
	}
}

func (s *vectorService) Import(ctx context.Context, req ImportRequest) error {
	defer s.cleanup(req)

	if err := s.validate(req); err != nil {
		return err
	}
	if err := s.uploadSvc.PreCheck(ctx, req.FileName, req.Theme); err != nil {
		return err
	}

	shpPath, err := s.extract(req)
	if err != nil {
		return err
	}

	entry := &model.CatalogEntry{
		FileName:    req.FileName,
		FileType:    model.FileTypeVector,
		Theme:       req.Theme,
		SRID:        req.SRID,
		Visibility:  false,
		IsPublished: false,
		EditMode:    true,
	}

	err = runSaga(ctx, "ImportShapefile", []sagaStep{
		{
			name: "import table into theme database",
			run: func(ctx context.Context) error {
				return s.runPipeline(ctx, req, shpPath)
			},
			compensate: func(ctx context.Context) error {
				return s.themeRepo.DropTable(ctx, req.Theme, req.FileName)
			},
		},
		{
			name: "insert catalog row",
			run: func(ctx context.Context) error {
				return s.catalogRepo.Create(ctx, entry)
			},
			compensate: nil,
		},
	})
	if err != nil {
		return err
	}

	// archive the source package; a missing archive never invalidates the
	// imported table, so this stays outside the saga
	archivePath := s.layout.ArchivePath(req.Theme, req.FileName)
	if err := copyFile(req.ZipPath, archivePath); err != nil {
		log.Warnf("[Import] failed to archive source package for %s: %v", req.FileName, err)
	} else {
		log.Infof("[Import] source package archived at %s", archivePath)
	}

	log.Infof("[Import] shapefile %q imported into theme %q", req.FileName, req.Theme)
	return nil
}

func (s *vectorService) validate(req ImportRequest) error {
	if req.FileName == "" || req.Theme == "" || req.SRID == "" {
		return fmt.Errorf("%w: file_name, theme and srid are required", apperr.ErrInvalidInput)
	}
	if !upload.FileNamePattern.MatchString(req.FileName) || !upload.FileNamePattern.MatchString(req.Theme) {
		return fmt.Errorf("%w: invalid characters in file_name or theme", apperr.ErrInvalidInput)
	}
	if _, err := strconv.Atoi(req.SRID); err != nil {
		return fmt.Errorf("%w: srid must be an integer", apperr.ErrInvalidInput)
	}
	if !strings.EqualFold(filepath.Ext(req.OriginalName), ".zip") {
		return fmt.Errorf("%w: ZIP file required", apperr.ErrInvalidInput)
	}
	return nil
}

// extract unpacks the ZIP next to it and verifies the mandatory shapefile
// components are present. Entry names are sanitized against path traversal.
func (s *vectorService) extract(req ImportRequest) (string, error) {
	extractDir := s.extractDir(req)
	r, err := zip.OpenReader(req.ZipPath)
	if err != nil {
		return "", fmt.Errorf("%w: unreadable ZIP: %v", apperr.ErrInvalidInput, err)
	}
	defer r.Close()

	for _, f := range r.File {
		name := filepath.Base(f.Name)
		if name == "" || strings.HasPrefix(name, ".") || f.FileInfo().IsDir() {
			continue
		}
		dst := filepath.Join(extractDir, name)
		if err := os.MkdirAll(extractDir, 0o755); err != nil {
			return "", fmt.Errorf("create extract dir: %w", err)
		}
		src, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("%w: corrupt ZIP entry %s: %v", apperr.ErrInvalidInput, f.Name, err)
		}
		out, err := os.Create(dst)
		if err != nil {
			src.Close()
			return "", fmt.Errorf("extract %s: %w", name, err)
		}
		_, err = io.Copy(out, src)
		src.Close()
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", name, err)
		}
	}

	base := strings.TrimSuffix(req.OriginalName, filepath.Ext(req.OriginalName))
	shpPath := filepath.Join(extractDir, base+".shp")
	for _, p := range []string{shpPath, filepath.Join(extractDir, base+".shx"), filepath.Join(extractDir, base+".dbf")} {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%w: invalid shapefile contents, missing %s", apperr.ErrInvalidInput, filepath.Base(p))
		}
	}
	return shpPath, nil
}

// runPipeline pipes shp2pgsql into psql against the theme database.
func (s *vectorService) runPipeline(ctx context.Context, req ImportRequest, shpPath string) error {
	shp := exec.CommandContext(ctx, "shp2pgsql", "-I", "-s", req.SRID, shpPath, req.FileName)
	psql := exec.CommandContext(ctx, "psql",
		"-h", s.cfg.PsqlHost,
		"-p", s.cfg.PsqlPort,
		"-U", s.cfg.PsqlUser,
		"-d", req.Theme,
		"-v", "ON_ERROR_STOP=1",
	)
	psql.Env = append(os.Environ(), "PGPASSWORD="+s.cfg.PsqlPassword)

	var stderr bytes.Buffer
	shp.Stderr = &stderr
	psql.Stderr = &stderr

	pipe, err := shp.StdoutPipe()
	if err != nil {
		return fmt.Errorf("pipe shp2pgsql: %w", err)
	}
	psql.Stdin = pipe

	if err := shp.Start(); err != nil {
		return fmt.Errorf("%w: start shp2pgsql: %v", apperr.ErrDownstream, err)
	}
	if err := psql.Start(); err != nil {
		_ = shp.Process.Kill()
		_ = shp.Wait()
		return fmt.Errorf("%w: start psql: %v", apperr.ErrDownstream, err)
	}

	shpErr := shp.Wait()
	psqlErr := psql.Wait()
	if shpErr != nil || psqlErr != nil {
		log.Errorf("[Import] database import failed for %s: shp2pgsql=%v psql=%v stderr=%s",
			req.FileName, shpErr, psqlErr, stderr.String())
		return fmt.Errorf("%w: database import failed", apperr.ErrInvalidInput)
	}
	return nil
}

func (s *vectorService) extractDir(req ImportRequest) string {
	return filepath.Join(filepath.Dir(req.ZipPath), req.FileName)
}

// cleanup removes the uploaded ZIP and the extraction directory on every
// path, success or failure.
func (s *vectorService) cleanup(req ImportRequest) {
	if req.ZipPath != "" {
		_ = os.Remove(req.ZipPath)
	}
	if req.FileName != "" {
		_ = os.RemoveAll(s.extractDir(req))
	}
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}
