package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestServer_Health(t *testing.T) {
	tests := []struct {
		name   string
		health HealthFunc
		want   int
	}{
		{name: "no check", health: nil, want: http.StatusOK},
		{name: "healthy", health: func(context.Context) error { return nil }, want: http.StatusOK},
		{name: "unhealthy", health: func(context.Context) error { return errors.New("redis down") }, want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(":0", tt.health, zerolog.Nop())
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	GenerationsSuperseded.Inc()

	s := NewServer(":0", nil, zerolog.Nop())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "kreport_report_generations_superseded_total") {
		t.Error("metrics output missing kreport_report_generations_superseded_total")
	}
}
