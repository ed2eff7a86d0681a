package escrow

import (
	"context"

	"github.com/xraph/tickstream/types"
)

// Store persists reservations and the settlement journal.
type Store interface {
	// PutReservation inserts or replaces the reservation for
	// (StreamID, Viewer).
	PutReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, streamID types.StreamID, viewer types.AccountID) (*Reservation, error)
	ListReservations(ctx context.Context, streamID types.StreamID) ([]*Reservation, error)

	// SettleTick applies a settlement as one all-or-nothing unit: the
	// reservation is debited by Cost (never below zero), the stream's
	// LastTick moves from FromTick to ToTick, and the settlement is
	// journaled. The LastTick guard fails with ErrTickConflict when the
	// stream moved since it was read.
	SettleTick(ctx context.Context, s *Settlement) error
	ListSettlements(ctx context.Context, streamID types.StreamID, opts ListOpts) ([]*Settlement, error)
}

// ListOpts pages the settlement journal, oldest first.
type ListOpts struct {
	Viewer types.AccountID
	Limit  int
	Offset int
}
