// Package plugin provides an extensible plugin system for tickstream.
// Plugins hook into lifecycle and ledger events; the engine dispatches
// ledger events only after the transition that produced them committed.
package plugin

import (
	"context"

	"github.com/xraph/tickstream/call"
	"github.com/xraph/tickstream/event"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Ledger event hooks
// ──────────────────────────────────────────────────

// OnStreamCreated is called after a stream is registered.
type OnStreamCreated interface {
	Plugin
	OnStreamCreated(ctx context.Context, e event.StreamCreated) error
}

// OnViewerJoined is called after a viewer escrows funds.
type OnViewerJoined interface {
	Plugin
	OnViewerJoined(ctx context.Context, e event.ViewerJoined) error
}

// OnTickProcessed is called after a tick settles.
type OnTickProcessed interface {
	Plugin
	OnTickProcessed(ctx context.Context, e event.TickProcessed) error
}

// ──────────────────────────────────────────────────
// Diagnostic hooks
// ──────────────────────────────────────────────────

// OnTransitionRejected is called when a transition fails. It is not a
// ledger event: the ledger is unchanged when it fires.
type OnTransitionRejected interface {
	Plugin
	OnTransitionRejected(ctx context.Context, c call.Call, err error) error
}

// OnCompensationFailed is called when the engine could not undo a funds
// operation after a store write failed. The funds ledger and the store
// disagree until an operator reconciles them.
type OnCompensationFailed interface {
	Plugin
	OnCompensationFailed(ctx context.Context, c call.Call, err error) error
}
