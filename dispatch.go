package tickstream

import (
	"context"
	"fmt"

	"github.com/xraph/tickstream/call"
	"github.com/xraph/tickstream/origin"
)

// Dispatch applies a decoded call under the given origin.
func (e *Engine) Dispatch(ctx context.Context, o origin.Origin, c call.Call) error {
	switch c.Kind {
	case call.KindCreateStream:
		return e.CreateStream(ctx, o, c.StreamID, c.Price)
	case call.KindJoinStream:
		return e.JoinStream(ctx, o, c.StreamID, c.MaxSeconds)
	case call.KindTick:
		return e.Tick(ctx, o, c.StreamID, c.Viewer, c.Ticks)
	default:
		err := fmt.Errorf("%w: %s", ErrUnknownCall, c.Kind)
		e.reject(ctx, c, err)
		return err
	}
}
