package api

import (
	"github.com/gin-gonic/gin"

	"whisperjournal/internal/api/handlers"
	"whisperjournal/internal/api/middleware"
	"whisperjournal/internal/config"
	"whisperjournal/internal/settings"
	"whisperjournal/internal/store"
	"whisperjournal/internal/worker"
)

func SetupRouter(st *store.Store, svc *settings.Service, procs *worker.ProcTable, cfg *config.Config, version string) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Recovery middleware (must be first)
	router.Use(middleware.Recover())

	// Request tracking and structured logging
	router.Use(middleware.RequestTracking())

	// CORS middleware
	router.Use(middleware.CORS())

	// Health check
	systemHandler := handlers.NewSystemHandler(st, svc, version)
	router.GET("/health", systemHandler.Health)

	// Entries
	entryHandler := handlers.NewEntryHandler(st, svc, procs)
	router.POST("/entries", entryHandler.Create)
	router.GET("/entries", entryHandler.List)
	router.GET("/entries/search", entryHandler.Search)
	router.GET("/entries/:id", entryHandler.Get)
	router.PATCH("/entries/:id", entryHandler.Update)
	router.DELETE("/entries/:id", entryHandler.Delete)
	router.POST("/entries/:id/audio", entryHandler.UploadAudio)
	router.POST("/entries/:id/cancel", entryHandler.Cancel)

	// Links
	linkHandler := handlers.NewLinkHandler(st)
	router.GET("/entries/:id/links", linkHandler.List)
	router.POST("/entries/:id/links", linkHandler.Create)
	router.DELETE("/entries/:id/links", linkHandler.Delete)

	// Audio serving (restricted to journal/audio under the vault)
	router.GET("/audio/*path", systemHandler.ServeAudio)

	// Settings and environment
	settingsHandler := handlers.NewSettingsHandler(svc)
	router.GET("/settings", settingsHandler.Get)
	router.PATCH("/settings", settingsHandler.Update)
	router.GET("/prerequisites", systemHandler.Prerequisites)
	router.POST("/validate-path", systemHandler.ValidatePath)
	router.GET("/whisper", systemHandler.WhisperModels)
	router.POST("/open-note", systemHandler.OpenNote)

	return router
}
