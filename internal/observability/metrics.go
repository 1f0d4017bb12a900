package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/inertia-live/inertia-go/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type AppMetrics struct {
	realtimeMessageCounter   metric.Int64Counter
	realtimeHandshakeCounter metric.Int64Counter
	realtimeReconnectCounter metric.Int64Counter
	locationPublishCounter   metric.Int64Counter
	snapshotRefetchCounter   metric.Int64Counter
	authRefreshCounter       metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("inertia-client")
	messageCounter, err := meter.Int64Counter("realtime.messages")
	if err != nil {
		return nil, err
	}
	handshakeCounter, err := meter.Int64Counter("realtime.handshakes")
	if err != nil {
		return nil, err
	}
	reconnectCounter, err := meter.Int64Counter("realtime.reconnects")
	if err != nil {
		return nil, err
	}
	publishCounter, err := meter.Int64Counter("location.publishes")
	if err != nil {
		return nil, err
	}
	refetchCounter, err := meter.Int64Counter("snapshot.refetches")
	if err != nil {
		return nil, err
	}
	refreshCounter, err := meter.Int64Counter("auth.refresh.attempts")
	if err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = &AppMetrics{
		realtimeMessageCounter:   messageCounter,
		realtimeHandshakeCounter: handshakeCounter,
		realtimeReconnectCounter: reconnectCounter,
		locationPublishCounter:   publishCounter,
		snapshotRefetchCounter:   refetchCounter,
		authRefreshCounter:       refreshCounter,
	}
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func RecordRealtimeMessage(kind, outcome string) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.realtimeMessageCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("outcome", outcome),
		),
	)
}

func RecordRealtimeHandshake(outcome string) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.realtimeHandshakeCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordRealtimeReconnect() {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.realtimeReconnectCounter.Add(context.Background(), 1)
}

func RecordLocationPublish(path, outcome string) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.locationPublishCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("path", path),
			attribute.String("outcome", outcome),
		),
	)
}

func RecordSnapshotRefetch(name, outcome string) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.snapshotRefetchCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("snapshot", name),
			attribute.String("outcome", outcome),
		),
	)
}

func RecordAuthRefresh(status string) {
	metricsMu.RLock()
	m := appMetrics
	metricsMu.RUnlock()
	if m == nil {
		return
	}
	m.authRefreshCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}
