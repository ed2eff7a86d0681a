package tickstream_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/xraph/tickstream"
	"github.com/xraph/tickstream/call"
	"github.com/xraph/tickstream/escrow"
	"github.com/xraph/tickstream/event"
	"github.com/xraph/tickstream/funds"
	fundsmem "github.com/xraph/tickstream/funds/memory"
	"github.com/xraph/tickstream/origin"
	storemem "github.com/xraph/tickstream/store/memory"
	"github.com/xraph/tickstream/stream"
	"github.com/xraph/tickstream/types"
)

const (
	creator types.AccountID = "creator"
	viewer  types.AccountID = "viewer"
)

type harness struct {
	engine   *tickstream.Engine
	store    *storemem.Store
	wallet   *fundsmem.Ledger
	recorder *event.Recorder
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, opts ...tickstream.Option) *harness {
	t.Helper()
	h := &harness{
		store:    storemem.New(),
		wallet:   fundsmem.New(),
		recorder: event.NewRecorder(),
	}
	opts = append([]tickstream.Option{
		tickstream.WithLogger(quietLogger()),
		tickstream.WithPlugin(h.recorder),
	}, opts...)
	h.engine = tickstream.New(h.store, h.wallet, opts...)

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.wallet.Deposit(context.Background(), viewer, 1000); err != nil {
		t.Fatal(err)
	}
	return h
}

// state captures everything a transition may touch.
type state struct {
	store  storemem.Snapshot
	wallet []funds.Account
}

func (h *harness) state() state {
	return state{store: h.store.Snapshot(), wallet: h.wallet.Accounts()}
}

func TestScenarioSettleThenInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sid := tickstream.StreamIDFromUint64(1)

	if err := h.engine.CreateStream(ctx, origin.Signed(creator), sid, 10); err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	if err := h.engine.JoinStream(ctx, origin.Signed(viewer), sid, 5); err != nil {
		t.Fatalf("JoinStream: %v", err)
	}
	if got := h.wallet.Account(viewer); got.Reserved != 50 || got.Free != 950 {
		t.Fatalf("viewer funds after join = %+v", got)
	}

	if err := h.engine.Tick(ctx, origin.None(), sid, viewer, 3); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	r, err := h.engine.Reservation(ctx, sid, viewer)
	if err != nil {
		t.Fatal(err)
	}
	if r.Amount != 20 {
		t.Errorf("reservation = %d, want 20", r.Amount)
	}
	if n, _ := h.engine.TickCount(ctx, sid); n != 3 {
		t.Errorf("last tick = %d, want 3", n)
	}
	if got := h.wallet.Account(creator); got.Free != 30 {
		t.Errorf("creator free = %d, want 30", got.Free)
	}

	before := h.state()
	events := h.recorder.Len()

	err = h.engine.Tick(ctx, origin.None(), sid, viewer, 3)
	if !errors.Is(err, tickstream.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if after := h.state(); !reflect.DeepEqual(before, after) {
		t.Errorf("state changed by failed tick")
	}
	if h.recorder.Len() != events {
		t.Errorf("failed tick emitted events")
	}
}

func TestTickUnknownStreamEmitsNothing(t *testing.T) {
	h := newHarness(t)

	err := h.engine.Tick(context.Background(), origin.None(), tickstream.StreamIDFromUint64(99), viewer, 1)
	if !errors.Is(err, tickstream.ErrStreamNotFound) {
		t.Fatalf("expected ErrStreamNotFound, got %v", err)
	}
	if h.recorder.Len() != 0 {
		t.Errorf("expected no events, got %d", h.recorder.Len())
	}
}

func TestCreateStreamUniqueness(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sid := tickstream.StreamIDFromUint64(7)

	if err := h.engine.CreateStream(ctx, origin.Signed(creator), sid, 10); err != nil {
		t.Fatal(err)
	}
	_ = h.engine.JoinStream(ctx, origin.Signed(viewer), sid, 2)
	_ = h.engine.Tick(ctx, origin.None(), sid, viewer, 1)
	before := h.state()

	err := h.engine.CreateStream(ctx, origin.Signed("mallory"), sid, 1)
	if !errors.Is(err, tickstream.ErrStreamExists) {
		t.Fatalf("expected ErrStreamExists, got %v", err)
	}
	if after := h.state(); !reflect.DeepEqual(before, after) {
		t.Error("duplicate create changed state")
	}

	s, _ := h.engine.GetStream(ctx, sid)
	if s.Creator != creator || s.PricePerSecond != 10 || s.LastTick != 1 {
		t.Errorf("stream overwritten: %+v", s)
	}
}

func TestJoinStreamRejections(t *testing.T) {
	ctx := context.Background()
	sid := tickstream.StreamIDFromUint64(1)
	pricey := tickstream.StreamIDFromUint64(2)

	tests := []struct {
		name string
		o    origin.Origin
		id   types.StreamID
		secs uint32
		want error
	}{
		{"unsigned", origin.None(), sid, 1, tickstream.ErrBadOrigin},
		{"unknown stream", origin.Signed(viewer), tickstream.StreamIDFromUint64(3), 1, tickstream.ErrStreamNotFound},
		{"not enough funds", origin.Signed(viewer), sid, 101, tickstream.ErrInsufficientFunds},
		{"unknown wallet", origin.Signed("newcomer"), sid, 1, tickstream.ErrInsufficientFunds},
		{"overflow", origin.Signed(viewer), pricey, 2, tickstream.ErrArithmeticOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_ = h.engine.CreateStream(ctx, origin.Signed(creator), sid, 10)
			_ = h.engine.CreateStream(ctx, origin.Signed(creator), pricey, types.MaxBalance)
			before := h.state()
			events := h.recorder.Len()

			err := h.engine.JoinStream(ctx, tt.o, tt.id, tt.secs)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !tickstream.IsRejected(err) {
				t.Errorf("IsRejected(%v) = false", err)
			}
			if after := h.state(); !reflect.DeepEqual(before, after) {
				t.Error("state changed")
			}
			if h.recorder.Len() != events {
				t.Error("events emitted on failure")
			}
		})
	}
}

func TestTickRejections(t *testing.T) {
	ctx := context.Background()
	sid := tickstream.StreamIDFromUint64(1)
	free := tickstream.StreamIDFromUint64(2)

	tests := []struct {
		name   string
		o      origin.Origin
		id     types.StreamID
		viewer types.AccountID
		ticks  uint32
		want   error
	}{
		{"signed origin", origin.Signed(viewer), sid, viewer, 1, tickstream.ErrBadOrigin},
		{"zero ticks", origin.None(), sid, viewer, 0, tickstream.ErrInvalidTicks},
		{"no reservation", origin.None(), sid, "stranger", 1, tickstream.ErrInsufficientBalance},
		{"cost above reservation", origin.None(), sid, viewer, 6, tickstream.ErrInsufficientBalance},
		{"tick counter overflow", origin.None(), free, viewer, 1, tickstream.ErrArithmeticOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_ = h.engine.CreateStream(ctx, origin.Signed(creator), sid, 10)
			_ = h.engine.JoinStream(ctx, origin.Signed(viewer), sid, 5)

			// A zero-price stream whose counter is already at the top.
			_ = h.engine.CreateStream(ctx, origin.Signed(creator), free, 0)
			_ = h.engine.JoinStream(ctx, origin.Signed(viewer), free, 1)
			if err := h.engine.Tick(ctx, origin.None(), free, viewer, math.MaxUint32); err != nil {
				t.Fatalf("setup tick: %v", err)
			}

			before := h.state()
			events := h.recorder.Len()

			err := h.engine.Tick(ctx, tt.o, tt.id, tt.viewer, tt.ticks)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if after := h.state(); !reflect.DeepEqual(before, after) {
				t.Error("state changed")
			}
			if h.recorder.Len() != events {
				t.Error("events emitted on failure")
			}
		})
	}
}

func TestTickCostOverflow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sid := tickstream.StreamIDFromUint64(1)

	_ = h.engine.CreateStream(ctx, origin.Signed(creator), sid, types.MaxBalance/2+1)
	if err := h.wallet.Deposit(ctx, viewer, types.MaxBalance-1000); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.JoinStream(ctx, origin.Signed(viewer), sid, 1); err != nil {
		t.Fatalf("JoinStream: %v", err)
	}

	if err := h.engine.Tick(ctx, origin.None(), sid, viewer, 2); !errors.Is(err, tickstream.ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
}

func TestReservationPolicy(t *testing.T) {
	ctx := context.Background()
	sid := tickstream.StreamIDFromUint64(1)

	tests := []struct {
		name   string
		policy escrow.Policy
		want   types.Balance
	}{
		{"overwrite", escrow.PolicyOverwrite, 30},
		{"accumulate", escrow.PolicyAccumulate, 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tickstream.WithReservationPolicy(tt.policy))
			_ = h.engine.CreateStream(ctx, origin.Signed(creator), sid, 10)
			_ = h.engine.JoinStream(ctx, origin.Signed(viewer), sid, 5)
			if err := h.engine.JoinStream(ctx, origin.Signed(viewer), sid, 3); err != nil {
				t.Fatal(err)
			}

			r, err := h.engine.Reservation(ctx, sid, viewer)
			if err != nil {
				t.Fatal(err)
			}
			if r.Amount != tt.want {
				t.Errorf("reservation = %d, want %d", r.Amount, tt.want)
			}
			// Both joins hold funds on the ledger regardless of policy.
			if got := h.wallet.Account(viewer).Reserved; got != 80 {
				t.Errorf("held = %d, want 80", got)
			}
		})
	}
}

func TestMonotoneTicksAndConservation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sid := tickstream.StreamIDFromUint64(1)
	const price = 7

	_ = h.engine.CreateStream(ctx, origin.Signed(creator), sid, price)
	_ = h.engine.JoinStream(ctx, origin.Signed(viewer), sid, 100)

	var reserved types.Balance = price * 100
	var transferred types.Balance
	var last uint32

	for _, ticks := range []uint32{1, 4, 2, 50, 60, 1, 30, 9} {
		err := h.engine.Tick(ctx, origin.None(), sid, viewer, ticks)
		now, _ := h.engine.TickCount(ctx, sid)

		if err != nil {
			if !errors.Is(err, tickstream.ErrInsufficientBalance) {
				t.Fatalf("tick %d: %v", ticks, err)
			}
			if now != last {
				t.Fatalf("failed tick moved last_tick %d -> %d", last, now)
			}
			continue
		}

		if now != last+ticks {
			t.Fatalf("last_tick = %d, want %d", now, last+ticks)
		}
		last = now
		transferred += price * types.Balance(ticks)

		r, _ := h.engine.Reservation(ctx, sid, viewer)
		if r.Amount+transferred != reserved {
			t.Fatalf("reservation %d + transferred %d != reserved %d", r.Amount, transferred, reserved)
		}
	}

	if got := h.wallet.Account(creator).Free; got != transferred {
		t.Errorf("creator received %d, want %d", got, transferred)
	}
	if transferred > reserved {
		t.Errorf("transferred %d exceeds reserved %d", transferred, reserved)
	}

	stls, err := h.engine.Settlements(ctx, sid, escrow.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	var journaled types.Balance
	prev := uint32(0)
	for _, s := range stls {
		if s.FromTick != prev {
			t.Errorf("journal gap: from %d after %d", s.FromTick, prev)
		}
		prev = s.ToTick
		journaled += s.Cost
	}
	if journaled != transferred {
		t.Errorf("journal total %d, want %d", journaled, transferred)
	}
}

func TestEventsCarryTransitionData(t *testing.T) {
	ctx := tickstream.WithBlockContext(context.Background(), tickstream.BlockContext{
		Number:    42,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	h := newHarness(t)
	sid := tickstream.StreamIDFromUint64(1)

	_ = h.engine.CreateStream(ctx, origin.Signed(creator), sid, 10)
	_ = h.engine.JoinStream(ctx, origin.Signed(viewer), sid, 5)
	_ = h.engine.Tick(ctx, origin.None(), sid, viewer, 3)

	want := []event.Event{
		event.StreamCreated{StreamID: sid, Creator: creator, Price: 10, Block: 42},
		event.ViewerJoined{StreamID: sid, Viewer: viewer, Amount: 50, Reserved: 50, Block: 42},
		event.TickProcessed{StreamID: sid, Viewer: viewer, Ticks: 3, Cost: 30, LastTick: 3, Block: 42},
	}
	if got := h.recorder.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("events:\n got %+v\nwant %+v", got, want)
	}

	s, _ := h.engine.GetStream(ctx, sid)
	if !s.CreatedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("created_at = %v, want block timestamp", s.CreatedAt)
	}
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sid := tickstream.StreamIDFromUint64(1)
	_ = h.wallet.Deposit(ctx, "alice", 100)

	_ = h.engine.CreateStream(ctx, origin.Signed(creator), sid, 1)
	_ = h.engine.CreateStream(ctx, origin.Signed("other"), tickstream.StreamIDFromUint64(2), 1)
	_ = h.engine.JoinStream(ctx, origin.Signed(viewer), sid, 5)
	_ = h.engine.JoinStream(ctx, origin.Signed("alice"), sid, 5)

	viewers, err := h.engine.Viewers(ctx, sid)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(viewers, []types.AccountID{"alice", viewer}) {
		t.Errorf("viewers = %v", viewers)
	}

	if _, err := h.engine.Viewers(ctx, tickstream.StreamIDFromUint64(9)); !tickstream.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	mine, _ := h.engine.ListStreams(ctx, stream.ListOpts{Creator: creator})
	if len(mine) != 1 || mine[0].ID != sid {
		t.Errorf("ListStreams by creator = %v", mine)
	}

	if _, err := h.engine.Reservation(ctx, sid, "nobody"); !errors.Is(err, tickstream.ErrReservationNotFound) {
		t.Errorf("expected ErrReservationNotFound, got %v", err)
	}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sid := tickstream.StreamIDFromUint64(5)

	steps := []struct {
		o    origin.Origin
		c    call.Call
		want error
	}{
		{origin.Signed(creator), call.CreateStream(sid, 2), nil},
		{origin.Signed(viewer), call.JoinStream(sid, 10), nil},
		{origin.None(), call.Tick(sid, viewer, 4), nil},
		{origin.Signed(viewer), call.Tick(sid, viewer, 1), tickstream.ErrBadOrigin},
		{origin.None(), call.Call{Kind: 77}, tickstream.ErrUnknownCall},
	}

	for _, s := range steps {
		if err := h.engine.Dispatch(ctx, s.o, s.c); !errors.Is(err, s.want) {
			t.Fatalf("Dispatch(%s): expected %v, got %v", s.c, s.want, err)
		}
	}

	if n, _ := h.engine.TickCount(ctx, sid); n != 4 {
		t.Errorf("last tick = %d, want 4", n)
	}
}

func TestReplayMintsIdenticalRecords(t *testing.T) {
	run := func() state {
		h := newHarness(t)
		sid := tickstream.StreamIDFromUint64(1)
		at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

		steps := []func(ctx context.Context) error{
			func(ctx context.Context) error { return h.engine.CreateStream(ctx, origin.Signed(creator), sid, 10) },
			func(ctx context.Context) error { return h.engine.JoinStream(ctx, origin.Signed(viewer), sid, 5) },
			func(ctx context.Context) error { return h.engine.Tick(ctx, origin.None(), sid, viewer, 1) },
			func(ctx context.Context) error { return h.engine.Tick(ctx, origin.None(), sid, viewer, 2) },
		}
		for i, step := range steps {
			ctx := tickstream.WithBlockContext(context.Background(), tickstream.BlockContext{
				Number:    uint64(i + 1),
				Timestamp: at.Add(time.Duration(i) * 6 * time.Second),
			})
			if err := step(ctx); err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
		}
		return h.state()
	}

	first, second := run(), run()
	if len(first.store.Settlements) != 2 {
		t.Fatalf("settlements = %d, want 2", len(first.store.Settlements))
	}
	if first.store.Settlements[0].ID == first.store.Settlements[1].ID {
		t.Errorf("settlements share id %s", first.store.Settlements[0].ID)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("replay differs:\n%+v\n%+v", first.store.Settlements, second.store.Settlements)
	}
}
