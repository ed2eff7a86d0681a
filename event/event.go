// Package event defines the domain events the engine emits after a
// transition commits.
package event

import (
	"github.com/xraph/tickstream/types"
)

// Type names an event for sinks that need a discriminator.
type Type string

const (
	TypeStreamCreated Type = "stream.created"
	TypeViewerJoined  Type = "viewer.joined"
	TypeTickProcessed Type = "tick.processed"
)

// Event is implemented by every domain event.
type Event interface {
	EventType() Type
	Stream() types.StreamID
}

// StreamCreated is emitted when a stream is registered.
type StreamCreated struct {
	StreamID types.StreamID  `json:"stream_id"`
	Creator  types.AccountID `json:"creator"`
	Price    types.Balance   `json:"price"`
	Block    uint64          `json:"block"`
}

// ViewerJoined is emitted when a viewer escrows funds against a stream.
type ViewerJoined struct {
	StreamID types.StreamID  `json:"stream_id"`
	Viewer   types.AccountID `json:"viewer"`
	Amount   types.Balance   `json:"amount"`
	Reserved types.Balance   `json:"reserved"`
	Block    uint64          `json:"block"`
}

// TickProcessed is emitted when a tick settles.
type TickProcessed struct {
	StreamID types.StreamID  `json:"stream_id"`
	Viewer   types.AccountID `json:"viewer"`
	Ticks    uint32          `json:"ticks"`
	Cost     types.Balance   `json:"cost"`
	LastTick uint32          `json:"last_tick"`
	Block    uint64          `json:"block"`
}

func (StreamCreated) EventType() Type { return TypeStreamCreated }
func (ViewerJoined) EventType() Type  { return TypeViewerJoined }
func (TickProcessed) EventType() Type { return TypeTickProcessed }

func (e StreamCreated) Stream() types.StreamID { return e.StreamID }
func (e ViewerJoined) Stream() types.StreamID  { return e.StreamID }
func (e TickProcessed) Stream() types.StreamID { return e.StreamID }
