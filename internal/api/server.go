package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/councilchamber/internal/council"
	"github.com/councilchamber/internal/history"
	"github.com/councilchamber/internal/preferences"
	"github.com/councilchamber/pkg/models"
)

// ShutdownTimeout bounds graceful shutdown
const ShutdownTimeout = 10 * time.Second

// ModelLister discovers selectable models
type ModelLister interface {
	FreeModels(ctx context.Context) []string
}

// Dependencies are the services the API exposes
type Dependencies struct {
	Dispatcher   *council.Dispatcher
	Personas     []models.Persona
	History      *history.Store
	Preferences  *preferences.Preferences
	Models       ModelLister
	DefaultModel string
	// Credential overrides the saved API key when set (flag or environment)
	Credential string
}

// Server represents the API server
type Server struct {
	echo *echo.Echo
	port int
	deps Dependencies
}

// NewServer creates a new API server
func NewServer(port int, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Error != nil {
				event = log.Warn().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("Request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo: e,
		port: port,
		deps: deps,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	// API v1 group
	v1 := s.echo.Group("/api/v1")

	v1.GET("/personas", s.getPersonas)

	v1.POST("/rounds", s.createRound)
	v1.GET("/rounds/current", s.getCurrentRound)
	v1.GET("/rounds/current/events", s.streamCurrentRound)

	v1.GET("/history", s.getHistory)
	v1.GET("/models", s.getModels)

	v1.GET("/settings", s.getSettings)
	v1.PUT("/settings", s.updateSettings)
}

// Handler exposes the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins the API server and blocks until an interrupt or SIGTERM
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.port).Msg("Council Chamber API listening")
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	return s.echo.Shutdown(shutdownCtx)
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) getPersonas(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"personas": s.deps.Personas})
}
