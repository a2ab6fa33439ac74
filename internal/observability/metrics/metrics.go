package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/quarterfind/quarterfind/internal/config"
)

// Module wires the metrics provider and instruments via Fx.
var Module = fx.Module("metrics",
	fx.Provide(LoadConfig),
	fx.Provide(NewProvider),
	fx.Provide(New),
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

func LoadConfig(cfg config.Config) Config {
	return Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OTLPEndpoint,
		ExporterProtocol: cfg.OTLPProtocol,
		ServiceName:      cfg.AppName,
		Environment:      cfg.Environment,
	}
}

// Metrics exposes application-level instruments. A nil *Metrics is valid and
// records nothing, so services can take it as an optional dependency.
type Metrics struct {
	accessGrants   metric.Int64Counter
	accessDenies   metric.Int64Counter
	debitConflicts metric.Int64Counter
	sweepExpired   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down meter provider")
			return provider.Shutdown(ctx)
		},
	})

	return provider, nil
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(protocol) {
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}

// New configures the domain instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "quarterfind"
	}
	meter := provider.Meter(name)

	accessGrants, err := meter.Int64Counter("access_grants_total",
		metric.WithDescription("Access decisions that granted, by reason."))
	if err != nil {
		return nil, err
	}
	accessDenies, err := meter.Int64Counter("access_denies_total",
		metric.WithDescription("Access decisions that denied, by reason."))
	if err != nil {
		return nil, err
	}
	debitConflicts, err := meter.Int64Counter("access_debit_conflicts_total",
		metric.WithDescription("Debit attempts that lost a race and were retried."))
	if err != nil {
		return nil, err
	}
	sweepExpired, err := meter.Int64Counter("token_packages_expired_total",
		metric.WithDescription("Token packages flipped to expired by the sweep."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		accessGrants:   accessGrants,
		accessDenies:   accessDenies,
		debitConflicts: debitConflicts,
		sweepExpired:   sweepExpired,
	}, nil
}

func (m *Metrics) RecordGrant(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.accessGrants.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordDeny(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.accessDenies.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordDebitConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.debitConflicts.Add(ctx, 1)
}

func (m *Metrics) RecordSwept(ctx context.Context, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.sweepExpired.Add(ctx, count)
}
