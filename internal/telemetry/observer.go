package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/agentcmd/extension"
)

const meterName = "github.com/BaSui01/agentcmd"

// Observer exports registry and dispatch measurements as OTel instruments.
type Observer struct {
	dispatches metric.Int64Counter
	duration   metric.Float64Histogram
	reloads    metric.Int64Counter
}

var _ extension.Observer = (*Observer)(nil)

// NewObserver creates the instruments on mp, or on the global provider when mp is nil.
func NewObserver(mp metric.MeterProvider) (*Observer, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	dispatches, err := meter.Int64Counter("agentcmd.command.dispatches",
		metric.WithDescription("Number of command dispatches"))
	if err != nil {
		return nil, fmt.Errorf("create dispatch counter: %w", err)
	}
	duration, err := meter.Float64Histogram("agentcmd.command.duration",
		metric.WithDescription("Command execution duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	reloads, err := meter.Int64Counter("agentcmd.registry.reloads",
		metric.WithDescription("Number of registry reloads"))
	if err != nil {
		return nil, fmt.Errorf("create reload counter: %w", err)
	}

	return &Observer{dispatches: dispatches, duration: duration, reloads: reloads}, nil
}

func (o *Observer) ObserveReload(_ *extension.Snapshot, _ time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	o.reloads.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}

func (o *Observer) ObserveDispatch(command, status string, duration time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("status", status),
	)
	o.dispatches.Add(ctx, 1, attrs)
	o.duration.Record(ctx, duration.Seconds(), attrs)
}
