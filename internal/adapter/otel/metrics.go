package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "switchyard"

// Metrics holds all Switchyard metric instruments.
type Metrics struct {
	RouteDecisions  metric.Int64Counter
	RouteRejections metric.Int64Counter
	UsageRecords    metric.Int64Counter
	UsageDropped    metric.Int64Counter
	RequestCost     metric.Float64Histogram
	ProbeDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RouteDecisions, err = meter.Int64Counter("switchyard.route.decisions",
		metric.WithDescription("Number of successful routing decisions"))
	if err != nil {
		return nil, err
	}

	m.RouteRejections, err = meter.Int64Counter("switchyard.route.rejections",
		metric.WithDescription("Number of rejected routing requests"))
	if err != nil {
		return nil, err
	}

	m.UsageRecords, err = meter.Int64Counter("switchyard.usage.records",
		metric.WithDescription("Number of usage events booked"))
	if err != nil {
		return nil, err
	}

	m.UsageDropped, err = meter.Int64Counter("switchyard.usage.dropped",
		metric.WithDescription("Number of usage events dropped on storage failure"))
	if err != nil {
		return nil, err
	}

	m.RequestCost, err = meter.Float64Histogram("switchyard.usage.cost_usd",
		metric.WithDescription("Cost per recorded usage event in USD"))
	if err != nil {
		return nil, err
	}

	m.ProbeDuration, err = meter.Float64Histogram("switchyard.probe.duration_seconds",
		metric.WithDescription("Provider liveness probe duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
