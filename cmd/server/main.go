// Package main is the application entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"assac-admin-go/internal/config"
	"assac-admin-go/internal/handler"
	"assac-admin-go/internal/middleware"
	"assac-admin-go/internal/repository"
	"assac-admin-go/internal/service"
	"assac-admin-go/internal/upload"
	"assac-admin-go/pkg/database"
	"assac-admin-go/pkg/geoserver"
	"assac-admin-go/pkg/log"
	"assac-admin-go/pkg/storage"
	"assac-admin-go/pkg/token"
)

func main() {
	// 1. configuration
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. logger
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("logger initialized")

	// 3. databases and file storage
	database.InitPostgres(cfg.Database.Postgres.DSN)
	database.InitThemeDBs(cfg.Database.Themes)

	layout, err := storage.NewLayout(cfg.Storage.Root)
	if err != nil {
		log.Fatalf("storage layout init failed: %v", err)
	}

	// 4. upload session store; redis keeps sessions visible across replicas,
	// memory is enough for a single instance
	var store upload.Store
	switch cfg.Upload.SessionStore {
	case "redis":
		database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		store, err = upload.NewRedisStore(database.RDB, layout.TempRoot())
	default:
		store, err = upload.NewFileStore(layout.TempRoot())
	}
	if err != nil {
		log.Fatalf("upload store init failed: %v", err)
	}

	// 5. repositories
	catalogRepo := repository.NewCatalogRepository(database.DB)
	themeRepo := repository.NewThemeRepository(database.ThemeDB)

	// 6. services (dependency injection)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	gsClient := geoserver.NewClient(cfg.GeoServer)
	uploadService := service.NewUploadService(catalogRepo, store, layout)
	publishService := service.NewPublishService(catalogRepo, gsClient, layout)
	catalogService := service.NewCatalogService(catalogRepo, themeRepo, gsClient, layout)
	vectorService := service.NewVectorService(catalogRepo, themeRepo, uploadService, layout, cfg.Import)
	reconcileService := service.NewReconcileService(catalogRepo, layout)

	// 7. background consistency sweep
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	if cfg.Reconcile.Enabled {
		interval := cfg.Reconcile.Interval
		if interval <= 0 {
			interval = time.Hour
		}
		go reconcileService.Run(sweepCtx, interval)
		log.Infof("consistency sweep enabled, interval %s", interval)
	}

	// 8. router
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	uploadHandler := handler.NewUploadHandler(store, uploadService, cfg.Upload.MaxSizeBytes)
	vectorHandler := handler.NewVectorHandler(vectorService, cfg.Import.WorkDir)
	publishHandler := handler.NewPublishHandler(publishService, cfg.GeoServer.Workspace)
	catalogHandler := handler.NewCatalogHandler(catalogService, cfg.GeoServer.Workspace)

	admin := r.Group("/admin")
	admin.Use(middleware.AdminAuth(jwtManager))
	{
		// resumable GeoTIFF transfers
		tiff := admin.Group("/tiffuploads")
		{
			tiff.POST("", uploadHandler.Create)
			tiff.PATCH("/:id", uploadHandler.Patch)
			tiff.HEAD("/:id", uploadHandler.Head)
			tiff.DELETE("/:id", uploadHandler.Terminate)
		}

		admin.GET("/raster/precheck/:fileName", uploadHandler.PreCheckRaster)
		admin.POST("/precheck", uploadHandler.PreCheck)
		admin.POST("/shpuploads", vectorHandler.Upload)
		admin.POST("/publish", publishHandler.PublishVector)
		admin.POST("/publish-tiff", publishHandler.PublishRaster)

		admin.GET("/catalog/:file_name", catalogHandler.Get)
		admin.POST("/metadata", catalogHandler.UpdateMetadata)
		admin.POST("/visibility", catalogHandler.SetVisibility)
		admin.POST("/editmode", catalogHandler.SetEditMode)
		admin.POST("/delete", catalogHandler.Delete)
	}

	// 9. HTTP server with graceful shutdown
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received, stopping server...")
	cancelSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP server shutdown failed: %v", err)
	}
	log.Info("server stopped cleanly")
}
