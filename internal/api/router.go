package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/itinerary-ingest/internal/api/handler"
	"github.com/timmy/itinerary-ingest/internal/api/middleware"
	"github.com/timmy/itinerary-ingest/internal/config"
	"github.com/timmy/itinerary-ingest/internal/metrics"
	"github.com/timmy/itinerary-ingest/internal/repository"
)

func newEngine(cfg *config.ServerConfig, component string) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(component))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(metrics.Middleware())
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}

// SetupStoreRouter serves the document store REST contract:
// GET/POST /api/:collection and GET/PATCH /api/:collection/:id.
func SetupStoreRouter(store *repository.Store, cfg *config.ServerConfig, health *handler.HealthHandler) *gin.Engine {
	r := newEngine(cfg, "store")
	r.GET("/health", health.Health)

	docs := handler.NewDocumentHandler(store.Resources())
	api := r.Group("/api", middleware.APIKey(cfg.APIKey))
	{
		api.GET("/:collection", docs.List)
		api.POST("/:collection", docs.Create)
		api.GET("/:collection/:id", docs.Get)
		api.PATCH("/:collection/:id", docs.Update)
	}
	return r
}

// SetupWorkerRouter serves the pipeline trigger endpoints.
func SetupWorkerRouter(runner handler.PipelineRunner, cfg *config.ServerConfig, health *handler.HealthHandler) *gin.Engine {
	r := newEngine(cfg, "worker")
	r.GET("/health", health.Health)

	pipeline := handler.NewPipelineHandler(runner)
	p := r.Group("/pipeline", middleware.APIKey(cfg.APIKey))
	{
		p.POST("/intake", pipeline.Intake)
		p.POST("/chunks", pipeline.Chunk)
		p.POST("/videos", pipeline.Videos)
		p.POST("/finalize", pipeline.Finalize)
	}
	return r
}
