package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctionroom/internal/config"
)

func TestNewManager_Disabled(t *testing.T) {
	mgr, err := NewManager(context.Background(), config.Observability{ServiceName: "auctionroom"}, zap.NewNop())
	require.NoError(t, err)
	require.False(t, mgr.TracingEnabled())
	require.False(t, mgr.MetricsEnabled())
	require.Nil(t, mgr.MetricsHandler())
	require.NoError(t, mgr.Shutdown(context.Background()))
}

func TestNewManager_PrometheusServesDomainCounters(t *testing.T) {
	mgr, err := NewManager(context.Background(), config.Observability{
		ServiceName:     "auctionroom",
		Environment:     "test",
		EnableMetrics:   true,
		MetricsExporter: "prometheus",
		PrometheusPath:  "/metrics",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	require.True(t, mgr.MetricsEnabled())
	require.False(t, mgr.TracingEnabled())

	counter, err := mgr.meterProvider.Meter("test").Int64Counter("bids.accepted")
	require.NoError(t, err)
	counter.Add(context.Background(), 2, metric.WithAttributes())

	rec := httptest.NewRecorder()
	mgr.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "bids_accepted_total")
	require.Contains(t, string(body), "go_goroutines")
}

func TestNewManager_UnknownExportersDisable(t *testing.T) {
	mgr, err := NewManager(context.Background(), config.Observability{
		EnableTracing:   true,
		TraceExporter:   "zipkin",
		EnableMetrics:   true,
		MetricsExporter: "statsd",
	}, zap.NewNop())
	require.NoError(t, err)
	require.False(t, mgr.TracingEnabled())
	require.False(t, mgr.MetricsEnabled())
}

func TestNewManager_OTLPRequiresEndpoint(t *testing.T) {
	_, err := NewManager(context.Background(), config.Observability{
		EnableTracing: true,
		TraceExporter: "otlp",
	}, zap.NewNop())
	require.Error(t, err)
}
