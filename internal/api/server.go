package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/HCTech2/GOLD-HFT/config"
	"github.com/HCTech2/GOLD-HFT/internal/auth"
	"github.com/HCTech2/GOLD-HFT/internal/database"
	"github.com/HCTech2/GOLD-HFT/internal/engine"
	"github.com/HCTech2/GOLD-HFT/internal/events"
	"github.com/HCTech2/GOLD-HFT/internal/logging"
)

// Server is the read-mostly HTTP surface: engine snapshot, risk status, the
// trade journal, and the validated config update entry point.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	engine     *engine.Engine
	repo       *database.Repository
	bus        *events.Bus
	jwt        *auth.JWTManager
	cfg        config.ServerConfig
	hub        *Hub
	log        zerolog.Logger
}

// NewServer creates the API server. repo may be nil when the journal is
// disabled; jwtManager may be nil when auth is disabled.
func NewServer(cfg config.ServerConfig, eng *engine.Engine, repo *database.Repository, bus *events.Bus, jwtManager *auth.JWTManager) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router: router,
		engine: eng,
		repo:   repo,
		bus:    bus,
		jwt:    jwtManager,
		cfg:    cfg,
		hub:    NewHub(),
		log:    logging.Component("api"),
	}

	s.setupRoutes()
	s.hub.Attach(bus)

	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	if s.jwt != nil {
		api.Use(auth.Middleware(s.jwt))
	}

	api.GET("/snapshot", s.handleSnapshot)
	api.GET("/positions", s.handlePositions)
	api.GET("/risk", s.handleRisk)
	api.GET("/config", s.handleGetConfig)
	api.PUT("/config", s.handleUpdateConfig)
	api.GET("/trades", s.handleTrades)
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("API server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
