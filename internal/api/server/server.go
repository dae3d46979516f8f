package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jack-merrell/offley.fm/internal/api/handlers"
	"github.com/jack-merrell/offley.fm/internal/api/middleware"
	"github.com/jack-merrell/offley.fm/internal/catalog"
	"github.com/jack-merrell/offley.fm/internal/config"
	database "github.com/jack-merrell/offley.fm/internal/db"
	"github.com/jack-merrell/offley.fm/internal/ingest"
	"github.com/jack-merrell/offley.fm/internal/presence"
	"github.com/jack-merrell/offley.fm/internal/storage"
)

type Server struct {
	cfg      *config.Config
	catalog  *catalog.Store
	pipeline *ingest.Pipeline
	tracker  *presence.Tracker
	storage  *storage.Client
	db       *database.Client
	router   *gin.Engine
}

func New(cfg *config.Config, cat *catalog.Store, pipeline *ingest.Pipeline,
	tracker *presence.Tracker, store *storage.Client, db *database.Client) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:      cfg,
		catalog:  cat,
		pipeline: pipeline,
		tracker:  tracker,
		storage:  store,
		db:       db,
		router:   gin.New(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.SilentLogger(), gin.Recovery())

	// The web player is served from anywhere; the catalog is public by
	// design.
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	s.router.Use(cors.New(corsConfig))
}

func (s *Server) setupRoutes() {
	stationHandler := handlers.NewStationHandler(s.catalog, s.pipeline, s.cfg.Server.TempDir)
	syncHandler := handlers.NewSyncHandler(s.tracker)
	assetHandler := handlers.NewAssetHandler(s.storage)
	ingestLogHandler := handlers.NewIngestLogHandler(s.db)

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "offley.fm"})
	})

	api := s.router.Group("/api")
	{
		api.GET("/stations", stationHandler.GetStations)
		api.POST("/stations", stationHandler.CreateStation)
		api.POST("/analyze", stationHandler.Analyze)

		api.POST("/sync", syncHandler.Sync)
		api.GET("/listeners", syncHandler.Listeners)

		api.GET("/ingests", ingestLogHandler.GetIngests)
	}

	// Published assets, served with the same keys the catalog refs use.
	s.router.GET("/audio/:file", assetHandler.StreamAudio)
	s.router.GET("/art/:file", assetHandler.StreamArt)
}

func (s *Server) Run() error {
	return s.router.Run(s.cfg.Server.Port)
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}
