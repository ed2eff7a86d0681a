package store

import (
	"context"

	"github.com/xraph/tickstream/escrow"
	"github.com/xraph/tickstream/stream"
	"github.com/xraph/tickstream/types"
)

// Store is the unified storage interface for all tickstream records.
// Each method is all-or-nothing.
type Store interface {
	// Stream methods
	CreateStream(ctx context.Context, s *stream.Stream) error
	GetStream(ctx context.Context, streamID types.StreamID) (*stream.Stream, error)
	ListStreams(ctx context.Context, opts stream.ListOpts) ([]*stream.Stream, error)

	// Escrow methods
	PutReservation(ctx context.Context, r *escrow.Reservation) error
	GetReservation(ctx context.Context, streamID types.StreamID, viewer types.AccountID) (*escrow.Reservation, error)
	ListReservations(ctx context.Context, streamID types.StreamID) ([]*escrow.Reservation, error)
	SettleTick(ctx context.Context, s *escrow.Settlement) error
	ListSettlements(ctx context.Context, streamID types.StreamID, opts escrow.ListOpts) ([]*escrow.Settlement, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ stream.Store = Store(nil)
	_ escrow.Store = Store(nil)
)
