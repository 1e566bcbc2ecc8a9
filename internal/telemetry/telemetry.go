// Package telemetry wires OpenTelemetry metrics to a Prometheus scrape
// endpoint and defines the instruments the server records.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

// Telemetry bundles the meter provider, the instruments and the scrape
// handler. Handler is nil when metrics are disabled.
type Telemetry struct {
	Metrics  *Metrics
	Handler  http.Handler
	shutdown func(context.Context) error
}

// Setup builds a Prometheus-backed meter provider, or a no-op one when
// enabled is false. Each call uses its own registry.
func Setup(enabled bool, serviceName, version string, logger *slog.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if !enabled {
		m, err := NewMetrics(noop.NewMeterProvider())
		if err != nil {
			return nil, err
		}
		return &Telemetry{Metrics: m, shutdown: func(context.Context) error { return nil }}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	reg := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	m, err := NewMetrics(provider)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}

	logger.Info("telemetry initialized", slog.String("exporter", "prometheus"))
	return &Telemetry{
		Metrics:  m,
		Handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		shutdown: provider.Shutdown,
	}, nil
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.shutdown == nil {
		return nil
	}
	return t.shutdown(ctx)
}

// ---------------------------------------------------------------------------
// Instruments
// ---------------------------------------------------------------------------

// Metrics records server events. A nil *Metrics records nothing.
type Metrics struct {
	admitted     metric.Int64Counter
	rejected     metric.Int64Counter
	active       metric.Int64UpDownCounter
	units        metric.Int64Counter
	audioBytes   metric.Int64Counter
	batchSize    metric.Int64Histogram
	batchErrors  metric.Int64Counter
	watchdog     metric.Int64Counter
	langRejected metric.Int64Counter
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("github.com/example/go-orpheus-tts")

	var (
		m   Metrics
		err error
	)
	if m.admitted, err = meter.Int64Counter("orpheustts.connections.admitted",
		metric.WithDescription("Connections that passed admission.")); err != nil {
		return nil, err
	}
	if m.rejected, err = meter.Int64Counter("orpheustts.connections.rejected",
		metric.WithDescription("Connections rejected at admission, by reason.")); err != nil {
		return nil, err
	}
	if m.active, err = meter.Int64UpDownCounter("orpheustts.connections.active",
		metric.WithDescription("Connections currently admitted.")); err != nil {
		return nil, err
	}
	if m.units, err = meter.Int64Counter("orpheustts.units",
		metric.WithDescription("Text units finished, by outcome.")); err != nil {
		return nil, err
	}
	if m.audioBytes, err = meter.Int64Counter("orpheustts.audio.bytes",
		metric.WithDescription("PCM bytes written to clients."),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if m.batchSize, err = meter.Int64Histogram("orpheustts.batch.size",
		metric.WithDescription("Items per executed detection batch."),
		metric.WithExplicitBucketBoundaries(1, 2, 4, 8, 16, 32)); err != nil {
		return nil, err
	}
	if m.batchErrors, err = meter.Int64Counter("orpheustts.batch.errors",
		metric.WithDescription("Detection batches that failed.")); err != nil {
		return nil, err
	}
	if m.watchdog, err = meter.Int64Counter("orpheustts.watchdog.closes",
		metric.WithDescription("Connections closed by the lifecycle watchdog, by reason.")); err != nil {
		return nil, err
	}
	if m.langRejected, err = meter.Int64Counter("orpheustts.langgate.rejected",
		metric.WithDescription("Text requests rejected by the language gate, by label.")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) ConnectionAdmitted(ctx context.Context) {
	if m == nil {
		return
	}
	m.admitted.Add(ctx, 1)
	m.active.Add(ctx, 1)
}

func (m *Metrics) ConnectionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.active.Add(ctx, -1)
}

func (m *Metrics) ConnectionRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.rejected.Add(ctx, 1, metric.WithAttributes(attrReason(reason)))
}

func (m *Metrics) UnitFinished(ctx context.Context, outcome string, bytes int) {
	if m == nil {
		return
	}
	m.units.Add(ctx, 1, metric.WithAttributes(attrOutcome(outcome)))
	if bytes > 0 {
		m.audioBytes.Add(ctx, int64(bytes))
	}
}

func (m *Metrics) BatchExecuted(ctx context.Context, size int, err error) {
	if m == nil {
		return
	}
	m.batchSize.Record(ctx, int64(size))
	if err != nil {
		m.batchErrors.Add(ctx, 1)
	}
}

func (m *Metrics) WatchdogClosed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.watchdog.Add(ctx, 1, metric.WithAttributes(attrReason(reason)))
}

func (m *Metrics) LanguageRejected(ctx context.Context, label string) {
	if m == nil {
		return
	}
	m.langRejected.Add(ctx, 1, metric.WithAttributes(attrLabel(label)))
}
