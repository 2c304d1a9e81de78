// Package telemetry wires OpenTelemetry metrics for campaign operations.
// When no OTLP endpoint is configured the provider still hands out a working
// meter so instruments can be created, but nothing is exported.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/transfa/ido-service/internal/domain"
)

const instrumentationName = "ido-service"

// Config configures the metric provider.
type Config struct {
	ServiceName  string
	OTLPEndpoint string // e.g. "localhost:4317"; empty disables export
	Insecure     bool
	Interval     time.Duration
}

// newResource describes the service without pinning a schema URL, so it merges
// with whatever schema the SDK's own detectors report.
func newResource(ctx context.Context, serviceName string) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
}

// Provider owns the SDK meter provider.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	logger        *slog.Logger
}

// New creates a meter provider and registers it globally.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = instrumentationName
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}

	p := &Provider{logger: slog.Default().With("component", "telemetry")}

	res, err := newResource(ctx, cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.OTLPEndpoint != "" {
		exporterOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(cfg.Interval),
		)))
		p.logger.InfoContext(ctx, "metric export enabled", "endpoint", cfg.OTLPEndpoint, "insecure", cfg.Insecure)
	} else {
		p.logger.InfoContext(ctx, "metric export disabled, no OTLP endpoint configured")
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	return p, nil
}

// Meter returns the service meter.
func (p *Provider) Meter() metric.Meter {
	if p == nil || p.meterProvider == nil {
		return otel.Meter(instrumentationName)
	}
	return p.meterProvider.Meter(instrumentationName)
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}

// Metrics records RED metrics for campaign operations. A nil *Metrics is a no-op.
type Metrics struct {
	operations metric.Int64Counter
	failures   metric.Int64Counter
	transfers  metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewMetrics creates the operation instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.operations, err = meter.Int64Counter("ido.operations.total",
		metric.WithDescription("Campaign operations processed"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	m.failures, err = meter.Int64Counter("ido.operations.failed",
		metric.WithDescription("Campaign operations rejected or failed"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	m.transfers, err = meter.Int64Counter("ido.transfers.total",
		metric.WithDescription("Ledger transfer legs executed"),
		metric.WithUnit("{transfer}"),
	)
	if err != nil {
		return nil, err
	}

	m.duration, err = meter.Float64Histogram("ido.operation.duration",
		metric.WithDescription("Campaign operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordOperation records one completed operation.
func (m *Metrics) RecordOperation(ctx context.Context, op domain.Operation, elapsed time.Duration, transfers int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("operation", string(op)))
	m.operations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		m.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", string(op)),
			attribute.String("error.kind", ErrorKind(err)),
		))
		return
	}
	if transfers > 0 {
		m.transfers.Add(ctx, int64(transfers), attrs)
	}
}

// ErrorKind names the error category for metric attributes.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrInvalidSchedule):
		return "invalid_schedule"
	case errors.Is(err, domain.ErrInvalidEconomicParameter):
		return "invalid_economic_parameter"
	case errors.Is(err, domain.ErrArithmeticOverflow):
		return "arithmetic_overflow"
	case errors.Is(err, domain.ErrPreconditionNotMet):
		return "precondition_not_met"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrNothingToDo):
		return "nothing_to_do"
	case errors.Is(err, domain.ErrCampaignNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
