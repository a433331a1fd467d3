package observability

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSpawnedTotalCountsPerLanguage(t *testing.T) {
	// Avoid NewMetrics() here: it registers against the default
	// registry, which would collide across test runs. Build an
	// isolated collector of the same shape instead.
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_execgw_spawned_total",
			Help: "Test spawn counter",
		},
		[]string{"language"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("python").Inc()
	counter.WithLabelValues("python").Inc()
	counter.WithLabelValues("javascript").Inc()

	if count := testutil.CollectAndCount(counter); count != 2 {
		t.Fatalf("expected 2 label combinations, got %d", count)
	}

	expected := `
		# HELP test_execgw_spawned_total Test spawn counter
		# TYPE test_execgw_spawned_total counter
		test_execgw_spawned_total{language="javascript"} 1
		test_execgw_spawned_total{language="python"} 2
	`
	if err := testutil.CollectAndCompare(counter, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected metric value: %v", err)
	}
}

func TestNewLoggerDefaultsToInfoLevel(t *testing.T) {
	log := NewLogger(false)
	if log == nil {
		t.Fatal("expected a non-nil logger")
	}
	if !log.Enabled(nil, 0) {
		t.Fatal("expected info level to be enabled by default")
	}
}

func TestNewLoggerDebugEnablesDebugLevel(t *testing.T) {
	log := NewLogger(true)
	if log == nil {
		t.Fatal("expected a non-nil logger")
	}
	if !log.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug level to be enabled when debug is true")
	}
}
