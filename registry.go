package tickstream

import (
	"context"
	"errors"
	"sort"

	"github.com/xraph/tickstream/call"
	"github.com/xraph/tickstream/event"
	"github.com/xraph/tickstream/origin"
	"github.com/xraph/tickstream/stream"
	"github.com/xraph/tickstream/types"
)

// ──────────────────────────────────────────────────
// Stream registry
// ──────────────────────────────────────────────────

// CreateStream registers a stream owned by the signing account with
// LastTick 0. An existing stream is never overwritten.
func (e *Engine) CreateStream(ctx context.Context, o origin.Origin, streamID types.StreamID, price types.Balance) (err error) {
	c := call.CreateStream(streamID, price)
	defer func() {
		if err != nil {
			e.reject(ctx, c, err)
		}
	}()

	creator, ok := o.Signer()
	if !ok {
		return ErrBadOrigin
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.GetStream(ctx, streamID); err == nil {
		return ErrStreamExists
	} else if !errors.Is(err, ErrStreamNotFound) {
		return err
	}

	block := blockOf(ctx)
	s := &stream.Stream{
		Entity:         types.NewEntity(block.Timestamp),
		ID:             streamID,
		Creator:        creator,
		PricePerSecond: price,
	}
	if err := e.store.CreateStream(ctx, s); err != nil {
		return err
	}

	e.logger.Info("stream created",
		"stream_id", streamID.String(),
		"creator", creator,
		"price_per_second", price.String(),
	)

	e.plugins.EmitStreamCreated(ctx, event.StreamCreated{
		StreamID: streamID,
		Creator:  creator,
		Price:    price,
		Block:    block.Number,
	})
	return nil
}

// GetStream returns the stream, or ErrStreamNotFound.
func (e *Engine) GetStream(ctx context.Context, streamID types.StreamID) (*stream.Stream, error) {
	return e.store.GetStream(ctx, streamID)
}

// TickCount returns the cumulative ticks settled on the stream.
func (e *Engine) TickCount(ctx context.Context, streamID types.StreamID) (uint32, error) {
	s, err := e.store.GetStream(ctx, streamID)
	if err != nil {
		return 0, err
	}
	return s.LastTick, nil
}

// ListStreams lists streams ordered by ID.
func (e *Engine) ListStreams(ctx context.Context, opts stream.ListOpts) ([]*stream.Stream, error) {
	return e.store.ListStreams(ctx, opts)
}

// Viewers returns the accounts holding a reservation on the stream,
// spent or not, sorted.
func (e *Engine) Viewers(ctx context.Context, streamID types.StreamID) ([]types.AccountID, error) {
	if _, err := e.store.GetStream(ctx, streamID); err != nil {
		return nil, err
	}

	reservations, err := e.store.ListReservations(ctx, streamID)
	if err != nil {
		return nil, err
	}

	viewers := make([]types.AccountID, 0, len(reservations))
	for _, r := range reservations {
		viewers = append(viewers, r.Viewer)
	}
	sort.Slice(viewers, func(i, j int) bool { return viewers[i] < viewers[j] })
	return viewers, nil
}
