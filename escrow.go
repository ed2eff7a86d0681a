package tickstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/tickstream/call"
	"github.com/xraph/tickstream/escrow"
	"github.com/xraph/tickstream/event"
	"github.com/xraph/tickstream/funds"
	"github.com/xraph/tickstream/origin"
	"github.com/xraph/tickstream/types"
)

// ──────────────────────────────────────────────────
// Escrow manager
// ──────────────────────────────────────────────────

// JoinStream holds price * maxSeconds of the signer's funds and records it
// as the signer's reservation on the stream. Under the default overwrite
// policy an unspent previous reservation is replaced; the funds it held
// stay reserved on the funds ledger.
func (e *Engine) JoinStream(ctx context.Context, o origin.Origin, streamID types.StreamID, maxSeconds uint32) (err error) {
	c := call.JoinStream(streamID, maxSeconds)
	defer func() {
		if err != nil {
			e.reject(ctx, c, err)
		}
	}()

	viewer, ok := o.Signer()
	if !ok {
		return ErrBadOrigin
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.store.GetStream(ctx, streamID)
	if err != nil {
		return err
	}

	amount, err := s.PricePerSecond.CheckedMul(uint64(maxSeconds))
	if err != nil {
		return fmt.Errorf("%w: %s x %d seconds", ErrArithmeticOverflow, s.PricePerSecond, maxSeconds)
	}

	block := blockOf(ctx)
	r := &escrow.Reservation{
		Entity:   types.NewEntity(block.Timestamp),
		StreamID: streamID,
		Viewer:   viewer,
		Amount:   amount,
	}

	prev, err := e.store.GetReservation(ctx, streamID, viewer)
	switch {
	case err == nil:
		r.CreatedAt = prev.CreatedAt
		if e.policy == escrow.PolicyAccumulate {
			if r.Amount, err = prev.Amount.CheckedAdd(amount); err != nil {
				return fmt.Errorf("%w: reservation %s + %s", ErrArithmeticOverflow, prev.Amount, amount)
			}
		}
	case !errors.Is(err, ErrReservationNotFound):
		return err
	}

	if err := e.funds.Reserve(ctx, viewer, amount); err != nil {
		if errors.Is(err, funds.ErrInsufficientFunds) {
			return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
		}
		return fmt.Errorf("tickstream: reserve funds: %w", err)
	}

	if err := e.store.PutReservation(ctx, r); err != nil {
		e.compensate(ctx, c, err, func(comp funds.Compensator) error {
			return comp.Unreserve(ctx, viewer, amount)
		})
		return err
	}

	e.logger.Info("viewer joined",
		"stream_id", streamID.String(),
		"viewer", viewer,
		"amount", amount.String(),
		"reserved", r.Amount.String(),
	)

	e.plugins.EmitViewerJoined(ctx, event.ViewerJoined{
		StreamID: streamID,
		Viewer:   viewer,
		Amount:   amount,
		Reserved: r.Amount,
		Block:    block.Number,
	})
	return nil
}

// Reservation returns the viewer's remaining escrow on the stream, or
// ErrReservationNotFound.
func (e *Engine) Reservation(ctx context.Context, streamID types.StreamID, viewer types.AccountID) (*escrow.Reservation, error) {
	return e.store.GetReservation(ctx, streamID, viewer)
}

// compensate undoes a funds operation after the store write that followed
// it failed. Ledgers without compensation support are left as they are.
func (e *Engine) compensate(ctx context.Context, c call.Call, cause error, undo func(funds.Compensator) error) {
	comp, ok := e.funds.(funds.Compensator)
	if !ok {
		e.logger.Error("store write failed after funds moved; ledger cannot compensate",
			"call", c.String(),
			"error", cause,
		)
		e.plugins.EmitCompensationFailed(ctx, c, cause)
		return
	}

	if err := undo(comp); err != nil {
		e.logger.Error("funds compensation failed",
			"call", c.String(),
			"cause", cause,
			"error", err,
		)
		e.plugins.EmitCompensationFailed(ctx, c, errors.Join(cause, err))
	}
}
