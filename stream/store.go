package stream

import (
	"context"

	"github.com/xraph/tickstream/types"
)

// Store persists stream records. Streams are inserted once and only ever
// mutated through escrow.Store.SettleTick.
type Store interface {
	CreateStream(ctx context.Context, s *Stream) error
	GetStream(ctx context.Context, streamID types.StreamID) (*Stream, error)
	ListStreams(ctx context.Context, opts ListOpts) ([]*Stream, error)
}

// ListOpts filters ListStreams. Results are ordered by stream ID.
type ListOpts struct {
	Creator types.AccountID
	Limit   int
	Offset  int
}
