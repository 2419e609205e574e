// Package api exposes reports, limits, activity ingest and the active child
// selection over HTTP.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/goodtune/kreport/internal/dashboard"
	"github.com/goodtune/kreport/internal/domain"
	"github.com/goodtune/kreport/internal/limits"
	"github.com/goodtune/kreport/internal/report"
	"github.com/goodtune/kreport/internal/storage"
	"github.com/goodtune/kreport/internal/usage"
)

// ReportBuilder builds a report for a child on demand.
type ReportBuilder interface {
	Build(ctx context.Context, childID string) (report.UsageReport, error)
}

// Controller drives the dashboard's report generations.
type Controller interface {
	Trigger(childID string) uint64
	RefreshIf(childID string) (uint64, bool)
	Current() string
}

// LimitResolver resolves a child's effective daily limit.
type LimitResolver interface {
	Resolve(ctx context.Context, childID string) limits.Limit
}

// Normalizer reduces a raw site to its registrable domain.
type Normalizer interface {
	Normalize(raw string) string
}

// Deps holds the collaborators the API serves.
type Deps struct {
	Store      storage.Store
	Builder    ReportBuilder
	Controller Controller
	Resolver   LimitResolver
	View       *dashboard.View
	Normalizer Normalizer
	Ignore     *domain.IgnoreList
	ResetTime  usage.ResetTime
	Clock      usage.Clock
}

// Config holds the API server configuration.
type Config struct {
	ListenAddr string
}

// Server represents the API HTTP server.
type Server struct {
	config   Config
	router   *gin.Engine
	server   *http.Server
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
	logger   zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	log := logger.With().Str("component", "api").Logger()

	// Create Gin router without default middleware (we use custom JSON logging)
	router := gin.New()
	router.Use(RecoveryMiddleware(log))
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(log))

	SetupRoutes(router, deps, log)

	return &Server{
		config: cfg,
		router: router,
		server: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 45 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: log,
	}
}

// SetupRoutes registers every API route on r.
func SetupRoutes(r *gin.Engine, deps Deps, logger zerolog.Logger) {
	if deps.Clock == nil {
		deps.Clock = usage.RealClock{}
	}

	reports := NewReportViews(deps, logger)
	limitViews := NewLimitViews(deps, logger)
	activity := NewActivityViews(deps, logger)
	domains := NewDomainViews(deps.Normalizer, deps.Ignore)

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/dashboard", reports.Dashboard)
		api.GET("/active-child", reports.GetActiveChild)
		api.PUT("/active-child", reports.SetActiveChild)

		api.GET("/children/:id/report", reports.Report)
		api.GET("/children/:id/limit", limitViews.GetLimit)
		api.PUT("/children/:id/limit", limitViews.SetLimit)
		api.PUT("/children/:id/settings", limitViews.SetSettings)
		api.GET("/children/:id/activity", activity.List)
		api.POST("/children/:id/activity", activity.Ingest)

		api.GET("/normalize", domains.Normalize)
		api.GET("/ignore-list", domains.IgnoreList)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the API server.
func (s *Server) Start() error {
	go func() {
		s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated API listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server failed")
		}
	}()
	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping API server")
	return s.server.Shutdown(ctx)
}
