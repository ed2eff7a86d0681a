package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	audithook "github.com/xraph/tickstream/audit_hook"
	"github.com/xraph/tickstream/call"
	"github.com/xraph/tickstream/event"
	"github.com/xraph/tickstream/types"
)

type captured struct {
	events []*audithook.AuditEvent
}

func (c *captured) Record(_ context.Context, e *audithook.AuditEvent) error {
	c.events = append(c.events, e)
	return nil
}

func TestLedgerEvents(t *testing.T) {
	ctx := context.Background()
	rec := &captured{}
	ext := audithook.New(rec, audithook.WithDecimals(2))
	sid := types.StreamIDFromUint64(1)

	if err := ext.OnStreamCreated(ctx, event.StreamCreated{StreamID: sid, Creator: "creator", Price: 10, Block: 1}); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnViewerJoined(ctx, event.ViewerJoined{StreamID: sid, Viewer: "viewer", Amount: 50, Reserved: 50, Block: 1}); err != nil {
		t.Fatal(err)
	}
	if err := ext.OnTickProcessed(ctx, event.TickProcessed{StreamID: sid, Viewer: "viewer", Ticks: 3, Cost: 30, LastTick: 3, Block: 2}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		action, resource, category string
		key                        string
		want                       any
	}{
		{audithook.ActionStreamCreated, audithook.ResourceStream, audithook.CategoryRegistry, "price_per_second_major", "0.10"},
		{audithook.ActionViewerJoined, audithook.ResourceReservation, audithook.CategoryEscrow, "amount", "50"},
		{audithook.ActionTickProcessed, audithook.ResourceSettlement, audithook.CategoryMetering, "cost_major", "0.30"},
	}
	if len(rec.events) != len(tests) {
		t.Fatalf("got %d events, want %d", len(rec.events), len(tests))
	}
	for i, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			e := rec.events[i]
			if e.Action != tt.action || e.Resource != tt.resource || e.Category != tt.category {
				t.Errorf("got %s/%s/%s", e.Action, e.Resource, e.Category)
			}
			if e.ResourceID != "1" {
				t.Errorf("resource id: got %q", e.ResourceID)
			}
			if e.Outcome != audithook.OutcomeSuccess {
				t.Errorf("outcome: got %q", e.Outcome)
			}
			if got := e.Metadata[tt.key]; got != tt.want {
				t.Errorf("metadata %s: got %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestDiagnosticEvents(t *testing.T) {
	ctx := context.Background()
	rec := &captured{}
	ext := audithook.New(rec)
	cause := errors.New("insufficient reserved balance")
	c := call.Tick(types.StreamIDFromUint64(7), "viewer", 3)

	_ = ext.OnTransitionRejected(ctx, c, cause)
	_ = ext.OnCompensationFailed(ctx, c, cause)

	if len(rec.events) != 2 {
		t.Fatalf("got %d events", len(rec.events))
	}
	rejected, compensation := rec.events[0], rec.events[1]
	if rejected.Outcome != audithook.OutcomeFailure || rejected.Reason != cause.Error() || rejected.Category != audithook.CategoryMetering {
		t.Errorf("rejected: %+v", rejected)
	}
	if compensation.Severity != audithook.SeverityCritical || compensation.Category != audithook.CategoryIntegrity {
		t.Errorf("compensation: %+v", compensation)
	}
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	created := event.StreamCreated{StreamID: types.StreamIDFromUint64(1), Creator: "creator", Price: 1}
	ticked := event.TickProcessed{StreamID: types.StreamIDFromUint64(1), Viewer: "viewer", Ticks: 1, Cost: 1}

	tests := []struct {
		name string
		opt  audithook.Option
		want int
	}{
		{"All", nil, 2},
		{"Enabled", audithook.WithEnabledActions(audithook.ActionTickProcessed), 1},
		{"Disabled", audithook.WithDisabledActions(audithook.ActionTickProcessed, audithook.ActionStreamCreated), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &captured{}
			opts := []audithook.Option{}
			if tt.opt != nil {
				opts = append(opts, tt.opt)
			}
			ext := audithook.New(rec, opts...)
			_ = ext.OnStreamCreated(ctx, created)
			_ = ext.OnTickProcessed(ctx, ticked)
			if len(rec.events) != tt.want {
				t.Errorf("got %d events, want %d", len(rec.events), tt.want)
			}
		})
	}
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	ext := audithook.New(
		audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error { return errors.New("backend down") }),
		audithook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err := ext.OnStreamCreated(context.Background(), event.StreamCreated{}); err != nil {
		t.Errorf("recorder failures must not fail the hook: %v", err)
	}
}
