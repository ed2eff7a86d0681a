// Package audithook bridges tickstream ledger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// an audit backend directly. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/tickstream/call"
	"github.com/xraph/tickstream/event"
	"github.com/xraph/tickstream/plugin"
	"github.com/xraph/tickstream/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin               = (*Extension)(nil)
	_ plugin.OnStreamCreated      = (*Extension)(nil)
	_ plugin.OnViewerJoined       = (*Extension)(nil)
	_ plugin.OnTickProcessed      = (*Extension)(nil)
	_ plugin.OnTransitionRejected = (*Extension)(nil)
	_ plugin.OnCompensationFailed = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	decimals int32
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Ledger event hooks
// ──────────────────────────────────────────────────

// OnStreamCreated implements plugin.OnStreamCreated.
func (e *Extension) OnStreamCreated(ctx context.Context, evt event.StreamCreated) error {
	return e.record(ctx, ActionStreamCreated, SeverityInfo, OutcomeSuccess,
		ResourceStream, evt.StreamID.String(), CategoryRegistry, nil,
		"creator", evt.Creator.String(),
		"price_per_second", evt.Price.String(),
		"price_per_second_major", e.major(evt.Price),
		"block", evt.Block,
	)
}

// OnViewerJoined implements plugin.OnViewerJoined.
func (e *Extension) OnViewerJoined(ctx context.Context, evt event.ViewerJoined) error {
	return e.record(ctx, ActionViewerJoined, SeverityInfo, OutcomeSuccess,
		ResourceReservation, evt.StreamID.String(), CategoryEscrow, nil,
		"viewer", evt.Viewer.String(),
		"amount", evt.Amount.String(),
		"amount_major", e.major(evt.Amount),
		"reserved", evt.Reserved.String(),
		"block", evt.Block,
	)
}

// OnTickProcessed implements plugin.OnTickProcessed.
func (e *Extension) OnTickProcessed(ctx context.Context, evt event.TickProcessed) error {
	return e.record(ctx, ActionTickProcessed, SeverityInfo, OutcomeSuccess,
		ResourceSettlement, evt.StreamID.String(), CategoryMetering, nil,
		"viewer", evt.Viewer.String(),
		"ticks", evt.Ticks,
		"cost", evt.Cost.String(),
		"cost_major", e.major(evt.Cost),
		"last_tick", evt.LastTick,
		"block", evt.Block,
	)
}

// ──────────────────────────────────────────────────
// Diagnostic hooks
// ──────────────────────────────────────────────────

// OnTransitionRejected implements plugin.OnTransitionRejected.
func (e *Extension) OnTransitionRejected(ctx context.Context, c call.Call, err error) error {
	return e.record(ctx, ActionTransitionRejected, SeverityInfo, OutcomeFailure,
		ResourceTransition, c.StreamID.String(), categoryOf(c), err,
		"call", c.Kind.String(),
		"viewer", c.Viewer.String(),
		"ticks", c.Ticks,
	)
}

// OnCompensationFailed implements plugin.OnCompensationFailed.
func (e *Extension) OnCompensationFailed(ctx context.Context, c call.Call, err error) error {
	return e.record(ctx, ActionCompensationFailed, SeverityCritical, OutcomeFailure,
		ResourceTransition, c.StreamID.String(), CategoryIntegrity, err,
		"call", c.Kind.String(),
		"viewer", c.Viewer.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func (e *Extension) major(b types.Balance) string {
	return b.FormatMajor(e.decimals)
}

func categoryOf(c call.Call) string {
	switch c.Kind {
	case call.KindCreateStream:
		return CategoryRegistry
	case call.KindJoinStream:
		return CategoryEscrow
	default:
		return CategoryMetering
	}
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
