// Package server provides the HTTP API for faxd.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/faxd/internal/corrections"
	"github.com/fyrsmithlabs/faxd/internal/fields"
	"github.com/fyrsmithlabs/faxd/internal/pipeline"
)

// Server exposes the fax pipeline over HTTP.
type Server struct {
	echo     *echo.Echo
	pipeline *pipeline.Pipeline
	store    corrections.Store
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server. The store may be nil when faxd
// runs without a correction store; the corrections endpoints then return
// 503.
func NewServer(p *pipeline.Pipeline, store corrections.Store, logger *zap.Logger, cfg *Config) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		pipeline: p,
		store:    store,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/process", s.handleProcess)
	v1.POST("/corrections", s.handleSaveCorrection)
	v1.GET("/corrections", s.handleListCorrections)
}

// ProcessRequest is the request body for POST /api/v1/process.
type ProcessRequest struct {
	Text string `json:"text"`
}

// ProcessResponse is the response body for POST /api/v1/process.
type ProcessResponse struct {
	Fields     map[fields.Field]fields.Value `json:"fields"`
	StartedAt  time.Time                     `json:"started_at"`
	DurationMS int64                         `json:"duration_ms"`
}

// CorrectionRequest is the request body for POST /api/v1/corrections.
type CorrectionRequest struct {
	Text  string `json:"text"`
	Field string `json:"field"`
	Value string `json:"value"`
}

// CorrectionResponse is the response body for POST /api/v1/corrections.
type CorrectionResponse struct {
	ID string `json:"id"`
}

// ListCorrectionsResponse is the response body for GET /api/v1/corrections.
type ListCorrectionsResponse struct {
	Corrections []corrections.Record `json:"corrections"`
	Count       int                  `json:"count"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleProcess runs one document through the pipeline.
func (s *Server) handleProcess(c echo.Context) error {
	var req ProcessRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid process request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.pipeline.Run(c.Request().Context(), req.Text)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyDocument) {
			return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Client is gone; nothing useful to send.
			return err
		}
		s.logger.Error("pipeline run failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "processing failed")
	}

	return c.JSON(http.StatusOK, ProcessResponse{
		Fields:     result.Fields,
		StartedAt:  result.StartedAt,
		DurationMS: result.Duration.Milliseconds(),
	})
}

// handleSaveCorrection persists an operator correction.
func (s *Server) handleSaveCorrection(c echo.Context) error {
	if s.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "correction store not configured")
	}

	var req CorrectionRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid correction request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	field, err := fields.Parse(req.Field)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown field %q", req.Field))
	}

	id, err := s.pipeline.SaveCorrection(c.Request().Context(), req.Text, field, req.Value)
	if err != nil {
		if errors.Is(err, corrections.ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if errors.Is(err, corrections.ErrStorage) {
			s.logger.Error("correction write failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusBadGateway, "correction store unavailable")
		}
		s.logger.Error("correction save failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save correction")
	}

	return c.JSON(http.StatusCreated, CorrectionResponse{ID: id})
}

// handleListCorrections returns every stored correction, oldest first.
func (s *Server) handleListCorrections(c echo.Context) error {
	if s.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "correction store not configured")
	}

	records, err := s.store.ListAll(c.Request().Context())
	if err != nil {
		s.logger.Error("correction list failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "correction store unavailable")
	}

	return c.JSON(http.StatusOK, ListCorrectionsResponse{
		Corrections: records,
		Count:       len(records),
	})
}

// Handler exposes the route handler for in-process testing.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
