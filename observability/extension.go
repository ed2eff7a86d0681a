// Package observability provides a metrics extension for tickstream that
// records ledger event counts through a MetricFactory.
package observability

import (
	"context"
	"errors"

	"github.com/xraph/tickstream"
	"github.com/xraph/tickstream/call"
	"github.com/xraph/tickstream/event"
	"github.com/xraph/tickstream/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin               = (*MetricsExtension)(nil)
	_ plugin.OnInit               = (*MetricsExtension)(nil)
	_ plugin.OnStreamCreated      = (*MetricsExtension)(nil)
	_ plugin.OnViewerJoined       = (*MetricsExtension)(nil)
	_ plugin.OnTickProcessed      = (*MetricsExtension)(nil)
	_ plugin.OnTransitionRejected = (*MetricsExtension)(nil)
	_ plugin.OnCompensationFailed = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide ledger metrics.
// Register it as a tickstream plugin to track escrow and metering.
type MetricsExtension struct {
	factory MetricFactory

	// Registry metrics
	StreamsCreated Counter

	// Escrow metrics
	ViewersJoined  Counter
	ReservedAmount Histogram

	// Metering metrics
	TicksProcessed Counter
	TicksSettled   Counter
	SettledAmount  Counter
	TickCost       Histogram

	// Rejection metrics
	Rejected             Counter
	RejectedInsufficient Counter
	RejectedNotFound     Counter
	RejectedConflict     Counter

	// Error metrics
	StoreErrors         Counter
	CompensationFailure Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		StreamsCreated: factory.Counter("tickstream.stream.created"),

		ViewersJoined:  factory.Counter("tickstream.viewer.joined"),
		ReservedAmount: factory.Histogram("tickstream.viewer.reserved_amount"),

		TicksProcessed: factory.Counter("tickstream.tick.processed"),
		TicksSettled:   factory.Counter("tickstream.tick.seconds"),
		SettledAmount:  factory.Counter("tickstream.tick.settled_amount"),
		TickCost:       factory.Histogram("tickstream.tick.cost"),

		Rejected:             factory.Counter("tickstream.transition.rejected"),
		RejectedInsufficient: factory.Counter("tickstream.transition.rejected.insufficient"),
		RejectedNotFound:     factory.Counter("tickstream.transition.rejected.not_found"),
		RejectedConflict:     factory.Counter("tickstream.transition.rejected.conflict"),

		StoreErrors:         factory.Counter("tickstream.store.errors"),
		CompensationFailure: factory.Counter("tickstream.compensation.failed"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// OnStreamCreated implements plugin.OnStreamCreated.
func (m *MetricsExtension) OnStreamCreated(_ context.Context, _ event.StreamCreated) error {
	m.StreamsCreated.Inc()
	return nil
}

// OnViewerJoined implements plugin.OnViewerJoined.
func (m *MetricsExtension) OnViewerJoined(_ context.Context, e event.ViewerJoined) error {
	m.ViewersJoined.Inc()
	m.ReservedAmount.Observe(float64(e.Amount))
	return nil
}

// OnTickProcessed implements plugin.OnTickProcessed.
func (m *MetricsExtension) OnTickProcessed(_ context.Context, e event.TickProcessed) error {
	m.TicksProcessed.Inc()
	m.TicksSettled.Add(float64(e.Ticks))
	m.SettledAmount.Add(float64(e.Cost))
	m.TickCost.Observe(float64(e.Cost))
	return nil
}

// OnTransitionRejected implements plugin.OnTransitionRejected.
func (m *MetricsExtension) OnTransitionRejected(_ context.Context, _ call.Call, err error) error {
	m.Rejected.Inc()
	switch {
	case errors.Is(err, tickstream.ErrInsufficientBalance), errors.Is(err, tickstream.ErrInsufficientFunds):
		m.RejectedInsufficient.Inc()
	case tickstream.IsNotFound(err):
		m.RejectedNotFound.Inc()
	case errors.Is(err, tickstream.ErrStreamExists), errors.Is(err, tickstream.ErrTickConflict):
		m.RejectedConflict.Inc()
	case !tickstream.IsRejected(err):
		m.StoreErrors.Inc()
	}
	return nil
}

// OnCompensationFailed implements plugin.OnCompensationFailed.
func (m *MetricsExtension) OnCompensationFailed(_ context.Context, _ call.Call, _ error) error {
	m.CompensationFailure.Inc()
	return nil
}
