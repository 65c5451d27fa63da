package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Metrics holds the application instruments. A nil *Metrics is valid and
// records nothing, so callers never have to branch on whether metrics are
// configured.
type Metrics struct {
	cartMutations    metric.Int64Counter
	ordersCreated    metric.Int64Counter
	orderItems       metric.Int64Counter
	mutationDuration metric.Float64Histogram
	mirrorRetries    metric.Int64Counter
}

// Init sets up an OTLP/HTTP exporter and returns the instruments plus the
// provider for shutdown.
func Init(ctx context.Context, endpoint, serviceName string) (*Metrics, *sdkmetric.MeterProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("build resource: %w", err)
	}

	exporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)

	m, err := build(provider.Meter("storefront"))
	if err != nil {
		return nil, nil, err
	}
	return m, provider, nil
}

// Disabled returns instruments backed by a no-op meter.
func Disabled() *Metrics {
	m, _ := build(noop.NewMeterProvider().Meter("storefront"))
	return m
}

func build(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	if m.cartMutations, err = meter.Int64Counter("cart_mutations_total",
		metric.WithDescription("Cart mutations by action and outcome")); err != nil {
		return nil, err
	}
	if m.ordersCreated, err = meter.Int64Counter("orders_created_total",
		metric.WithDescription("Orders successfully created")); err != nil {
		return nil, err
	}
	if m.orderItems, err = meter.Int64Counter("order_items_total",
		metric.WithDescription("Line items across created orders")); err != nil {
		return nil, err
	}
	if m.mutationDuration, err = meter.Float64Histogram("cart_mutation_duration_seconds",
		metric.WithDescription("Cart mutation latency")); err != nil {
		return nil, err
	}
	if m.mirrorRetries, err = meter.Int64Counter("mirror_sync_retries_total",
		metric.WithDescription("Mirror mutations retried after re-establishing cart identity")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) RecordMutation(ctx context.Context, action string, start time.Time, ok bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.Bool("success", ok),
	)
	m.cartMutations.Add(ctx, 1, attrs)
	m.mutationDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}

func (m *Metrics) RecordOrder(ctx context.Context, items int) {
	if m == nil {
		return
	}
	m.ordersCreated.Add(ctx, 1)
	m.orderItems.Add(ctx, int64(items))
}

func (m *Metrics) RecordMirrorRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.mirrorRetries.Add(ctx, 1)
}
