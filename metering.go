package tickstream

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/xraph/tickstream/call"
	"github.com/xraph/tickstream/escrow"
	"github.com/xraph/tickstream/event"
	"github.com/xraph/tickstream/funds"
	"github.com/xraph/tickstream/id"
	"github.com/xraph/tickstream/origin"
	"github.com/xraph/tickstream/types"
)

// ──────────────────────────────────────────────────
// Metering
// ──────────────────────────────────────────────────

// Tick settles ticks elapsed seconds of the stream against the named
// viewer's reservation. It must be dispatched with origin.None: any
// submitter may name any viewer, but only that viewer's own escrow is
// debited and never beyond what it holds.
//
// All checks run before anything is mutated. The funds transfer runs
// next; the reservation debit, the LastTick advance and the settlement
// record then commit in one store call.
func (e *Engine) Tick(ctx context.Context, o origin.Origin, streamID types.StreamID, viewer types.AccountID, ticks uint32) (err error) {
	c := call.Tick(streamID, viewer, ticks)
	defer func() {
		if err != nil {
			e.reject(ctx, c, err)
		}
	}()

	if !o.IsNone() {
		return ErrBadOrigin
	}
	if ticks == 0 {
		return ErrInvalidTicks
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.store.GetStream(ctx, streamID)
	if err != nil {
		return err
	}

	r, err := e.store.GetReservation(ctx, streamID, viewer)
	if errors.Is(err, ErrReservationNotFound) {
		return fmt.Errorf("%w: no reservation for %s", ErrInsufficientBalance, viewer)
	}
	if err != nil {
		return err
	}

	cost, err := s.PricePerSecond.CheckedMul(uint64(ticks))
	if err != nil {
		return fmt.Errorf("%w: %s x %d ticks", ErrArithmeticOverflow, s.PricePerSecond, ticks)
	}
	next := uint64(s.LastTick) + uint64(ticks)
	if next > math.MaxUint32 {
		return fmt.Errorf("%w: last tick %d + %d", ErrArithmeticOverflow, s.LastTick, ticks)
	}

	if !r.Amount.Covers(cost) {
		return fmt.Errorf("%w: reserved %s, cost %s", ErrInsufficientBalance, r.Amount, cost)
	}

	block := blockOf(ctx)
	settlement := &escrow.Settlement{
		ID:        id.SettlementIDFor(streamID, s.LastTick),
		StreamID:  streamID,
		Viewer:    viewer,
		Creator:   s.Creator,
		Ticks:     ticks,
		Cost:      cost,
		FromTick:  s.LastTick,
		ToTick:    uint32(next),
		SettledAt: block.Timestamp.UTC(),
	}

	if err := e.funds.Transfer(ctx, viewer, s.Creator, cost); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	if err := e.store.SettleTick(ctx, settlement); err != nil {
		e.compensate(ctx, c, err, func(comp funds.Compensator) error {
			return comp.Reverse(ctx, viewer, s.Creator, cost)
		})
		return err
	}

	e.logger.Info("tick processed",
		"stream_id", streamID.String(),
		"viewer", viewer,
		"ticks", ticks,
		"cost", cost.String(),
		"last_tick", settlement.ToTick,
	)

	e.plugins.EmitTickProcessed(ctx, event.TickProcessed{
		StreamID: streamID,
		Viewer:   viewer,
		Ticks:    ticks,
		Cost:     cost,
		LastTick: settlement.ToTick,
		Block:    block.Number,
	})
	return nil
}

// Settlements lists the settlement journal of a stream, oldest first.
func (e *Engine) Settlements(ctx context.Context, streamID types.StreamID, opts escrow.ListOpts) ([]*escrow.Settlement, error) {
	return e.store.ListSettlements(ctx, streamID, opts)
}
