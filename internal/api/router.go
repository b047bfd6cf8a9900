package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/safety/internal/api/handlers"
	"github.com/your-org/safety/internal/api/ws"
	"github.com/your-org/safety/internal/auth"
	"github.com/your-org/safety/internal/models"
	"github.com/your-org/safety/internal/storage"
)

type RouterConfig struct {
	APIKey         string
	AllowedOrigins []string
	ImageURLPrefix string
	MaxImageBytes  int64

	Workers   handlers.WorkerService
	Config    handlers.ConfigStore
	Defaults  models.SystemConfig
	Images    storage.ImageStore
	Publisher handlers.RecognitionPublisher
	Relay     *ws.Relay
	Bus       *ws.Bus
	Checks    []handlers.Check
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = len(origins) == 0 || slices.Contains(origins, "*")
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "X-API-Key")
	cfg.MaxAge = 12 * time.Hour
	return cfg
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks...)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Reference images
	imageH := handlers.NewImageHandler(cfg.Images)
	r.GET(cfg.ImageURLPrefix+"/:name", imageH.Serve)

	// WebSocket
	wsGroup := r.Group("/ws")
	wsGroup.Use(auth.APIKeyMiddleware(cfg.APIKey))
	wsGroup.GET("/video", cfg.Relay.HandleWS)
	wsGroup.GET("/recognitions", cfg.Bus.HandleWS)

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// Workers
	workerH := handlers.NewWorkerHandler(cfg.Workers, cfg.ImageURLPrefix, cfg.MaxImageBytes)
	v1.GET("/workers", workerH.List)
	v1.POST("/workers", workerH.Register)
	v1.POST("/workers/bulk", workerH.Bulk)
	v1.POST("/workers/batch-delete", workerH.BatchDelete)
	v1.GET("/workers/:id", workerH.Get)
	v1.PUT("/workers/:id", workerH.Update)
	v1.DELETE("/workers/:id", workerH.Delete)
	v1.PATCH("/workers/:id/status", workerH.SetStatus)

	// System config
	configH := handlers.NewConfigHandler(cfg.Config, cfg.Defaults)
	v1.GET("/config", configH.Get)
	v1.PUT("/config", configH.Update)
	v1.POST("/config/verify-admin", configH.VerifyAdmin)
	v1.GET("/config/equipment", configH.Equipment)

	// Recognition reports
	recH := handlers.NewRecognitionHandler(cfg.Publisher)
	v1.POST("/recognitions", recH.Report)

	return r
}
