package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"catalogsync/internal/api/handlers"
	"catalogsync/internal/api/middleware"
	"catalogsync/internal/config"
	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Deps are the collaborators behind the routes.
type Deps struct {
	Products   handlers.ProductReader
	Categories handlers.CategoryLister
	Sync       handlers.SyncTrigger
	Status     handlers.StatusSource
	DB         handlers.Pinger
	Channels   []config.ChannelConfig
	// Manual sync triggers allowed per minute across all channels.
	SyncPerMinute int
}

type Server struct {
	config *config.Config
	logger *logger.Logger
	router *gin.Engine
	server *http.Server
}

func New(cfg *config.Config, logger *logger.Logger, deps Deps) *Server {
	// Set Gin mode
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS())

	perMinute := deps.SyncPerMinute
	if perMinute <= 0 {
		perMinute = 6
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)

	// Initialize handlers
	productHandler := handlers.NewProductHandler(deps.Products, deps.Channels, logger)
	categoryHandler := handlers.NewCategoryHandler(deps.Categories, logger)
	syncHandler := handlers.NewSyncHandler(deps.Sync, deps.Status, deps.Channels, limiter, logger)

	router.GET("/healthz", handlers.Health(deps.DB))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Routes
	v1 := router.Group("/api/v1")
	{
		// Products
		products := v1.Group("/products")
		{
			products.GET("", productHandler.List)
			products.GET("/:id", productHandler.Get)
		}

		// Categories
		v1.GET("/categories", categoryHandler.List)

		// Sync control
		sync := v1.Group("/sync")
		{
			sync.GET("/status", syncHandler.Status)
			sync.POST("/:channel", syncHandler.Trigger)
		}
	}

	return &Server{
		config: cfg,
		logger: logger,
		router: router,
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.APIHost, s.config.APIPort)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server on " + addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the gin engine for tests and embedding.
func (s *Server) Router() *gin.Engine {
	return s.router
}
