package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"

	"ledgerlens/internal/datastore"
	"ledgerlens/pkg/contracts"
	"ledgerlens/pkg/contracts/domain"
)

// MeterName is the instrumentation scope for ledgerlens metrics
const MeterName = "ledgerlens"

// Metrics records datastore and HTTP instruments through an OpenTelemetry
// meter exported to a private Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	rowsIngested  metric.Int64Counter
	parseFailures metric.Int64Counter
	queries       metric.Int64Counter
	opDuration    metric.Float64Histogram
	httpRequests  metric.Int64Counter
	httpDuration  metric.Float64Histogram
}

var _ datastore.Recorder = (*Metrics)(nil)

// NewMetrics creates the instruments and registers Go runtime and process
// collectors next to them
func NewMetrics(serviceName string) (*Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(
		otelprom.WithRegisterer(reg),
		otelprom.WithoutUnits(),
		otelprom.WithoutCounterSuffixes(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(contracts.Version),
		)),
	)
	meter := mp.Meter(MeterName, metric.WithInstrumentationVersion(contracts.Version))

	m := &Metrics{registry: reg, provider: mp}
	if m.rowsIngested, err = meter.Int64Counter("ledgerlens_rows_ingested_total",
		metric.WithDescription("Rows written into datasets")); err != nil {
		return nil, err
	}
	if m.parseFailures, err = meter.Int64Counter("ledgerlens_parse_failures_total",
		metric.WithDescription("Cells that failed to parse, by reason")); err != nil {
		return nil, err
	}
	if m.queries, err = meter.Int64Counter("ledgerlens_queries_total",
		metric.WithDescription("Queries by access path")); err != nil {
		return nil, err
	}
	if m.opDuration, err = meter.Float64Histogram("ledgerlens_operation_duration_seconds",
		metric.WithDescription("Datastore operation duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.httpRequests, err = meter.Int64Counter("ledgerlens_http_requests_total",
		metric.WithDescription("HTTP requests by route and status")); err != nil {
		return nil, err
	}
	if m.httpDuration, err = meter.Float64Histogram("ledgerlens_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for extra collectors and tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RowsIngested(dataset string, n int) {
	if n <= 0 {
		return
	}
	m.rowsIngested.Add(context.Background(), int64(n),
		metric.WithAttributes(attribute.String("dataset", dataset)))
}

func (m *Metrics) ParseFailures(reason domain.FailureReason, n int) {
	if n <= 0 {
		return
	}
	m.parseFailures.Add(context.Background(), int64(n),
		metric.WithAttributes(attribute.String("reason", string(reason))))
}

func (m *Metrics) QueryPath(path string) {
	m.queries.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("path", path)))
}

func (m *Metrics) ObserveOperation(op string, d time.Duration) {
	m.opDuration.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(attribute.String("operation", op)))
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(ctx context.Context, method, route string, status int, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, d.Seconds(), attrs)
}

// Shutdown stops the meter provider
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
