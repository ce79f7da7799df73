// Package api serves the stored publications over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"djeworker/internal/config"
	"djeworker/internal/logger"
	"djeworker/internal/models"
	"djeworker/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// Repository is the publication store behind the API.
type Repository interface {
	List(ctx context.Context, q storage.ListQuery) (*storage.ListResult, error)
	Get(ctx context.Context, id int64) (*models.Publication, error)
	Insert(ctx context.Context, p *models.Publication) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status models.Status) (*models.Publication, error)
	Delete(ctx context.Context, id int64) error
	FindByDateRange(ctx context.Context, from, to time.Time, page, limit int) (*storage.ListResult, error)
	FindByCaseNumber(ctx context.Context, number string) ([]models.Publication, error)
	Stats(ctx context.Context) (*storage.Stats, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server is the HTTP API.
type Server struct {
	echo     *echo.Echo
	repo     Repository
	logger   *logger.Logger
	health   HealthCheck
	address  string
	maxLimit int
}

// New builds the server and its routes. metrics may be nil.
func New(cfg *config.APIConfig, repo Repository, metrics http.Handler, health HealthCheck, log *logger.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		repo:     repo,
		logger:   log,
		health:   health,
		address:  cfg.Address,
		maxLimit: cfg.MaxLimit,
	}

	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}

			log.Log(c.Request().Context(), level, "HTTP request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.String(),
				"remote_ip", v.RemoteIP,
			)

			return nil
		},
	}))

	e.GET("/healthz", s.healthz)

	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}

	api := e.Group("/api", JWTAuth([]byte(cfg.JWTSecret)), noCache)
	s.registerPublications(api.Group("/publicacoes"))

	return s, nil
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("API listening", "address", s.address)

		if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	s.logger.Info("API shutting down")

	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) healthz(c echo.Context) error {
	if s.health != nil {
		if err := s.health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// handleError maps domain errors to status codes and writes a JSON body.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := "Erro interno no servidor"

	var he *echo.HTTPError

	switch {
	case errors.As(err, &he):
		code = he.Code
		msg = fmt.Sprint(he.Message)
	case errors.Is(err, storage.ErrNotFound):
		code = http.StatusNotFound
		msg = "Publicação não encontrada"
	case errors.Is(err, models.ErrInvalidStatus):
		code = http.StatusBadRequest
		msg = invalidStatusMessage()
	case errors.Is(err, storage.ErrDuplicate):
		code = http.StatusConflict
		msg = "Publicação já cadastrada"
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	}

	body := errorResponse{Error: msg}
	if code == http.StatusUnauthorized {
		body.Message = msg
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, body)
	}

	if err != nil {
		s.logger.Warn("Failed to write error response", "error", err)
	}
}

func noCache(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")

		return next(c)
	}
}
