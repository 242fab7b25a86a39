// Package api exposes the HTTP surface: health, jobs, wanted items,
// providers, history, stats, and the WebSocket endpoint.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/backup"
	"github.com/sublarr/sublarr/internal/config"
	"github.com/sublarr/sublarr/internal/history"
	provmanager "github.com/sublarr/sublarr/internal/provider/manager"
	"github.com/sublarr/sublarr/internal/queue"
	"github.com/sublarr/sublarr/internal/scheduler"
	"github.com/sublarr/sublarr/internal/stats"
	"github.com/sublarr/sublarr/internal/translator"
	"github.com/sublarr/sublarr/internal/wanted"
	"github.com/sublarr/sublarr/internal/websocket"
	"github.com/sublarr/sublarr/internal/whisper"
)

// Server is the HTTP API server.
type Server struct {
	echo   *echo.Echo
	logger zerolog.Logger

	settings    *config.Store
	queue       *queue.Queue
	wantedStore *wanted.Store
	scanner     *wanted.Scanner
	searcher    *wanted.Searcher
	providers   *provmanager.Manager
	history     *history.Service
	stats       *stats.Service
	engine      *translator.Engine
	whisperQ    *whisper.Queue
	whisperSt   *whisper.Store
	backup      *backup.Service
	scheduler   *scheduler.Scheduler
	hub         *websocket.Hub
}

// Deps carries the wired services the server exposes.
type Deps struct {
	Settings    *config.Store
	Queue       *queue.Queue
	WantedStore *wanted.Store
	Scanner     *wanted.Scanner
	Searcher    *wanted.Searcher
	Providers   *provmanager.Manager
	History     *history.Service
	Stats       *stats.Service
	Engine      *translator.Engine
	WhisperQ    *whisper.Queue
	WhisperSt   *whisper.Store
	Backup      *backup.Service
	Scheduler   *scheduler.Scheduler
	Hub         *websocket.Hub
}

// NewServer creates the API server.
func NewServer(deps Deps, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:        e,
		logger:      logger.With().Str("component", "api").Logger(),
		settings:    deps.Settings,
		queue:       deps.Queue,
		wantedStore: deps.WantedStore,
		scanner:     deps.Scanner,
		searcher:    deps.Searcher,
		providers:   deps.Providers,
		history:     deps.History,
		stats:       deps.Stats,
		engine:      deps.Engine,
		whisperQ:    deps.WhisperQ,
		whisperSt:   deps.WhisperSt,
		backup:      deps.Backup,
		scheduler:   deps.Scheduler,
		hub:         deps.Hub,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Msg("Request")
			return nil
		},
	}))
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api/v1")

	api.GET("/health", s.getHealth)
	api.GET("/system/status", s.getSystemStatus)
	api.GET("/system/tasks", s.getTasks)
	api.POST("/system/tasks/:id/run", s.runTask)

	api.GET("/jobs", s.listJobs)
	api.GET("/jobs/:id", s.getJob)
	api.POST("/jobs", s.enqueueJob)

	api.GET("/wanted", s.listWanted)
	api.POST("/wanted/scan", s.scanWanted)
	api.POST("/wanted/search", s.searchWanted)
	api.POST("/wanted/:id/search", s.searchWantedItem)
	api.POST("/wanted/:id/ignore", s.ignoreWanted)
	api.DELETE("/wanted/:id", s.deleteWanted)

	api.GET("/settings", s.listSettings)
	api.PUT("/settings/:key", s.setSetting)
	api.DELETE("/settings/:key", s.deleteSetting)

	api.GET("/providers", s.getProviders)
	api.GET("/history", s.getHistory)
	api.GET("/stats/daily", s.getDailyStats)
	api.GET("/stats/providers", s.getProviderStats)

	api.GET("/whisper", s.listWhisperJobs)
	api.POST("/whisper/:id/cancel", s.cancelWhisperJob)

	api.GET("/backups", s.listBackups)
	api.POST("/backups/run", s.runBackup)

	s.echo.GET("/ws", s.hub.HandleWebSocket)
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Str("version", config.Version).Msg("Starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

func errorResponse(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]string{"error": err.Error()})
}

// healthPayload is returned by /health.
type healthPayload struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) getHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthPayload{
		Status:  "ok",
		Version: config.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}
