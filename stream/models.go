package stream

import (
	"github.com/xraph/tickstream/types"
)

// Stream is a priced, creator-owned metered resource.
type Stream struct {
	types.Entity
	ID             types.StreamID  `json:"id"`
	Creator        types.AccountID `json:"creator"`
	PricePerSecond types.Balance   `json:"price_per_second"`
	LastTick       uint32          `json:"last_tick"`
}

// Clone returns a detached copy of the stream.
func (s *Stream) Clone() *Stream {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
