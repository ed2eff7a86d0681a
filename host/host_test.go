package host_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/tickstream"
	"github.com/xraph/tickstream/admission"
	"github.com/xraph/tickstream/call"
	"github.com/xraph/tickstream/escrow"
	fundsmem "github.com/xraph/tickstream/funds/memory"
	"github.com/xraph/tickstream/host"
	"github.com/xraph/tickstream/origin"
	storemem "github.com/xraph/tickstream/store/memory"
	"github.com/xraph/tickstream/ticker"
	"github.com/xraph/tickstream/txpool"
	"github.com/xraph/tickstream/types"
)

const (
	creator types.AccountID = "creator"
	viewer  types.AccountID = "viewer"
)

var (
	stream1 = types.StreamIDFromUint64(1)
	genesis = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	host   *host.Host
	engine *tickstream.Engine
	wallet *fundsmem.Ledger
}

func newFixture(t *testing.T, opts ...admission.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	wallet := fundsmem.New()
	if err := wallet.Deposit(ctx, viewer, 1000); err != nil {
		t.Fatal(err)
	}
	engine := tickstream.New(storemem.New(), wallet, tickstream.WithLogger(quietLogger()))
	if err := engine.Start(ctx); err != nil {
		t.Fatal(err)
	}

	block := 0
	clock := func() time.Time {
		block++
		return genesis.Add(time.Duration(block) * 6 * time.Second)
	}
	pool := txpool.New(admission.New(opts...), txpool.WithLogger(quietLogger()))
	h, err := host.New(engine, pool, host.WithClock(clock), host.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{host: h, engine: engine, wallet: wallet}
}

func (f *fixture) submit(t *testing.T, o origin.Origin, c call.Call) {
	t.Helper()
	if _, err := f.host.Submit(context.Background(), o, c); err != nil {
		t.Fatalf("submit %s: %v", c, err)
	}
}

func (f *fixture) produce(t *testing.T) *host.Block {
	t.Helper()
	b, err := f.host.ProduceBlock(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestNewRequiresEngine(t *testing.T) {
	if _, err := host.New(nil, nil); !errors.Is(err, host.ErrNoEngine) {
		t.Errorf("expected ErrNoEngine, got %v", err)
	}
}

func TestBlockFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submit(t, origin.Signed(creator), call.CreateStream(stream1, 10))
	f.submit(t, origin.Signed(viewer), call.JoinStream(stream1, 5))
	b := f.produce(t)

	if b.Number != 1 || len(b.Receipts) != 2 || b.Failed() != 0 {
		t.Fatalf("block 1: number=%d receipts=%d failed=%d", b.Number, len(b.Receipts), b.Failed())
	}

	f.submit(t, origin.None(), call.Tick(stream1, viewer, 3))
	b = f.produce(t)
	if b.Number != 2 || len(b.Receipts) != 1 || !b.Receipts[0].OK() {
		t.Fatalf("block 2: %+v", b)
	}

	f.submit(t, origin.None(), call.Tick(stream1, viewer, 3))
	b = f.produce(t)
	if len(b.Receipts) != 1 || !errors.Is(b.Receipts[0].Err, tickstream.ErrInsufficientBalance) {
		t.Fatalf("block 3: expected insufficient balance, got %+v", b.Receipts)
	}

	ticks, err := f.engine.TickCount(ctx, stream1)
	if err != nil {
		t.Fatal(err)
	}
	if ticks != 3 {
		t.Errorf("tick count: got %d, want 3", ticks)
	}
	if got := f.wallet.Account(creator).Free; got != 30 {
		t.Errorf("creator free: got %d, want 30", got)
	}
	if f.host.Pool().Len() != 0 {
		t.Errorf("included transactions must leave the pool")
	}
}

func TestSettlementsStampedWithBlockTime(t *testing.T) {
	f := newFixture(t)

	f.submit(t, origin.Signed(creator), call.CreateStream(stream1, 1))
	f.submit(t, origin.Signed(viewer), call.JoinStream(stream1, 10))
	f.produce(t)
	f.submit(t, origin.None(), call.Tick(stream1, viewer, 1))
	b := f.produce(t)

	stls, err := f.engine.Settlements(context.Background(), stream1, escrow.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(stls) != 1 {
		t.Fatalf("got %d settlements, want 1", len(stls))
	}
	if !stls[0].SettledAt.Equal(b.Timestamp) {
		t.Errorf("settled at %v, want block time %v", stls[0].SettledAt, b.Timestamp)
	}
}

func TestUnsignedAdmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.host.Submit(ctx, origin.None(), call.CreateStream(stream1, 10)); !errors.Is(err, admission.ErrInvalidCall) {
		t.Errorf("unsigned create must be refused by admission, got %v", err)
	}

	f.submit(t, origin.None(), call.Tick(stream1, viewer, 1))
	if _, err := f.host.Submit(ctx, origin.None(), call.Tick(stream1, viewer, 2)); !errors.Is(err, txpool.ErrTagInUse) {
		t.Errorf("second pending tick for a viewer must be refused, got %v", err)
	}

	// The pending tick is included (and fails: no such stream), freeing the slot.
	b := f.produce(t)
	if len(b.Receipts) != 1 || !errors.Is(b.Receipts[0].Err, tickstream.ErrStreamNotFound) {
		t.Fatalf("expected stream not found receipt, got %+v", b.Receipts)
	}
	f.submit(t, origin.None(), call.Tick(stream1, viewer, 2))
}

func TestStaleTicksExpire(t *testing.T) {
	f := newFixture(t, admission.WithLongevity(1))

	f.submit(t, origin.Signed(creator), call.CreateStream(stream1, 1))
	f.submit(t, origin.Signed(viewer), call.JoinStream(stream1, 10))
	f.produce(t)

	// Submitted at head 1 with longevity 1: valid only for block 1, which
	// is already produced.
	f.submit(t, origin.None(), call.Tick(stream1, viewer, 1))
	b := f.produce(t)
	if len(b.Receipts) != 0 {
		t.Fatalf("expired tick must not be applied, got %+v", b.Receipts)
	}
	if f.host.Pool().Len() != 0 {
		t.Errorf("expired tick must be dropped")
	}
}

func TestMaxUnsignedPerBlock(t *testing.T) {
	ctx := context.Background()
	wallet := fundsmem.New()
	engine := tickstream.New(storemem.New(), wallet, tickstream.WithLogger(quietLogger()))
	h, err := host.New(engine, nil, host.WithMaxUnsignedPerBlock(1), host.WithLogger(quietLogger()), host.WithStartBlock(100))
	if err != nil {
		t.Fatal(err)
	}

	for i := uint64(1); i <= 3; i++ {
		if _, err := h.Submit(ctx, origin.None(), call.Tick(types.StreamIDFromUint64(i), viewer, 1)); err != nil {
			t.Fatal(err)
		}
	}
	b, err := h.ProduceBlock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if b.Number != 101 || len(b.Receipts) != 1 {
		t.Fatalf("got block %d with %d receipts", b.Number, len(b.Receipts))
	}
	if h.Pool().Len() != 2 {
		t.Errorf("got %d pending, want 2", h.Pool().Len())
	}
}

func TestProduceBlockCanceled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.host.ProduceBlock(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if f.host.Number() != 0 {
		t.Errorf("no block may be produced on a canceled context")
	}
}

func TestTickerMetersEveryViewerOfAStream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const viewer2 types.AccountID = "viewer2"

	if err := f.wallet.Deposit(ctx, viewer2, 1000); err != nil {
		t.Fatal(err)
	}
	f.submit(t, origin.Signed(creator), call.CreateStream(stream1, 1))
	f.submit(t, origin.Signed(viewer), call.JoinStream(stream1, 100))
	f.submit(t, origin.Signed(viewer2), call.JoinStream(stream1, 100))
	f.produce(t)

	tk, err := ticker.New(f.host,
		ticker.WithTargets(
			ticker.Target{StreamID: stream1, Viewer: viewer},
			ticker.Target{StreamID: stream1, Viewer: viewer2},
		),
		ticker.WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatal(err)
	}

	const rounds = 10
	for i := 0; i < rounds; i++ {
		if err := tk.Signal(ctx); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if b := f.produce(t); len(b.Receipts) != 2 || b.Failed() != 0 {
			t.Fatalf("round %d: receipts=%d failed=%d", i, len(b.Receipts), b.Failed())
		}
	}

	for _, v := range []types.AccountID{viewer, viewer2} {
		r, err := f.engine.Reservation(ctx, stream1, v)
		if err != nil {
			t.Fatal(err)
		}
		if r.Amount != 100-rounds {
			t.Errorf("%s remaining = %d, want %d", v, r.Amount, 100-rounds)
		}
	}
	if got := f.wallet.Account(creator); got.Free != 2*rounds {
		t.Errorf("creator free = %d, want %d", got.Free, 2*rounds)
	}
	if n, _ := f.engine.TickCount(ctx, stream1); n != 2*rounds {
		t.Errorf("last tick = %d, want %d", n, 2*rounds)
	}
}
