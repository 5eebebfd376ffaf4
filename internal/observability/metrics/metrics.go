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
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes ledger instruments. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	subscriptionsCreated metric.Int64Counter
	sessionsConsumed     metric.Int64Counter
	stateConflicts       metric.Int64Counter
	paymentsRecorded     metric.Int64Counter
	refundsProcessed     metric.Int64Counter
	transactionFailures  metric.Int64Counter
	memberPromotions     metric.Int64Counter
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

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)

	return provider, nil
}

// New creates the ledger instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "studioledger"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.subscriptionsCreated, "studioledger_subscriptions_created_total", "Subscriptions created, by source."},
		{&m.sessionsConsumed, "studioledger_sessions_consumed_total", "Sessions consumed, by outcome."},
		{&m.stateConflicts, "studioledger_state_conflicts_total", "Guarded writes that matched zero rows."},
		{&m.paymentsRecorded, "studioledger_payments_recorded_total", "Completed payments recorded."},
		{&m.refundsProcessed, "studioledger_refunds_total", "Refunds processed."},
		{&m.transactionFailures, "studioledger_transaction_failures_total", "Atomic operations that failed at the store."},
		{&m.memberPromotions, "studioledger_member_promotions_total", "Trial member promotion attempts, by outcome."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	return m, nil
}

func (m *Metrics) RecordSubscriptionCreated(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.subscriptionsCreated.Add(ctx, 1, withAttrs(attribute.String("source", source)))
}

func (m *Metrics) RecordSessionConsumed(ctx context.Context, expired bool) {
	if m == nil {
		return
	}
	outcome := "consumed"
	if expired {
		outcome = "expired"
	}
	m.sessionsConsumed.Add(ctx, 1, withAttrs(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordStateConflict(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.stateConflicts.Add(ctx, 1, withAttrs(attribute.String("operation", operation)))
}

func (m *Metrics) RecordPayment(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.paymentsRecorded.Add(ctx, 1, withAttrs(attribute.String("payment_method", method)))
}

func (m *Metrics) RecordRefund(ctx context.Context, cancelled bool) {
	if m == nil {
		return
	}
	m.refundsProcessed.Add(ctx, 1, withAttrs(attribute.Bool("cancelled", cancelled)))
}

func (m *Metrics) RecordTransactionFailure(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.transactionFailures.Add(ctx, 1, withAttrs(attribute.String("operation", operation)))
}

func (m *Metrics) RecordMemberPromotion(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.memberPromotions.Add(ctx, 1, withAttrs(attribute.String("outcome", outcome)))
}

func withAttrs(attrs ...attribute.KeyValue) metric.AddOption {
	return metric.WithAttributes(FilterAttributes(attrs...)...)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"source":         {},
	"outcome":        {},
	"operation":      {},
	"payment_method": {},
	"cancelled":      {},
}

// FilterAttributes strips labels outside the allowlist. Member and
// subscription ids never become labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
