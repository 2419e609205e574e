package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Report metrics
	ReportsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kreport_reports_generated_total",
			Help: "Total usage reports generated",
		},
		[]string{"outcome"},
	)

	ReportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kreport_report_duration_seconds",
			Help:    "Time taken to build a usage report",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	GenerationsSuperseded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kreport_report_generations_superseded_total",
			Help: "Report generations discarded because a newer one was triggered",
		},
	)

	// Limit resolution metrics
	LimitTierFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kreport_limit_tier_fallbacks_total",
			Help: "Limit tiers treated as absent during resolution",
		},
		[]string{"tier", "reason"},
	)

	LimitResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kreport_limit_resolutions_total",
			Help: "Resolved daily limits by winning tier",
		},
		[]string{"tier"},
	)

	// Record quality metrics
	MalformedRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kreport_malformed_records_total",
			Help: "Activity records with malformed fields coerced to neutral values",
		},
		[]string{"field"},
	)

	ActivityFetchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kreport_activity_fetch_failures_total",
			Help: "Activity log fetches that failed and were reported as empty",
		},
	)

	ActivityIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kreport_activity_ingested_total",
			Help: "Activity events accepted by the ingest endpoint",
		},
	)

	// Normalizer cache metrics
	NormalizerCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kreport_normalizer_cache_hits_total",
			Help: "Domain normalizer cache hits",
		},
	)

	NormalizerCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kreport_normalizer_cache_misses_total",
			Help: "Domain normalizer cache misses",
		},
	)

	// Active child metrics
	ActiveChildChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kreport_active_child_changes_total",
			Help: "Active child changes by trigger source",
		},
		[]string{"source"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		ReportsGenerated,
		ReportDuration,
		GenerationsSuperseded,
		LimitTierFallbacks,
		LimitResolutions,
		MalformedRecords,
		ActivityFetchFailures,
		ActivityIngested,
		NormalizerCacheHits,
		NormalizerCacheMisses,
		ActiveChildChanges,
	)
}

// HealthFunc reports whether a backing dependency is reachable
type HealthFunc func(ctx context.Context) error

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server. When health is nil /health always reports OK.
func NewServer(addr string, health HealthFunc, logger zerolog.Logger) *Server {
	log := logger.With().Str("component", "metrics").Logger()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				log.Warn().Err(err).Msg("Health check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("UNAVAILABLE"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: log,
	}
}

// Handler returns the HTTP handler serving /metrics and /health
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Shutdown(ctx)
}
