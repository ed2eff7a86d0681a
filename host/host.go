// Package host is a minimal sequential block producer around the engine.
//
// Signed calls are queued in arrival order; unsigned ticks go through the
// transaction pool and its admission policy. ProduceBlock applies the
// signed queue and then the ready unsigned transactions, one at a time,
// under a single block context.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/tickstream"
	"github.com/xraph/tickstream/admission"
	"github.com/xraph/tickstream/call"
	"github.com/xraph/tickstream/origin"
	"github.com/xraph/tickstream/txpool"
)

// ErrNoEngine is returned by New when no dispatcher is supplied.
var ErrNoEngine = errors.New("host: no engine")

// Dispatcher applies a single transition. *tickstream.Engine implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, o origin.Origin, c call.Call) error
}

// Receipt is the outcome of one transaction in a block. A failed
// transition is still included; Err carries the rejection.
type Receipt struct {
	Hash   call.Hash
	Origin origin.Origin
	Call   call.Call
	Err    error
}

// OK reports whether the transition committed.
func (r Receipt) OK() bool { return r.Err == nil }

// Block is a produced block.
type Block struct {
	Number    admission.BlockNumber
	Timestamp time.Time
	Receipts  []Receipt
}

// Failed returns the number of rejected transitions in the block.
func (b *Block) Failed() int {
	n := 0
	for _, r := range b.Receipts {
		if !r.OK() {
			n++
		}
	}
	return n
}

type signedTx struct {
	hash   call.Hash
	origin origin.Origin
	call   call.Call
}

// Host produces blocks. It is safe for concurrent use; blocks are
// produced one at a time.
type Host struct {
	mu sync.Mutex

	engine      Dispatcher
	pool        *txpool.Pool
	signed      []signedTx
	number      admission.BlockNumber
	clock       func() time.Time
	maxUnsigned int
	logger      *slog.Logger
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// WithClock sets the source of block timestamps.
func WithClock(clock func() time.Time) Option {
	return func(h *Host) { h.clock = clock }
}

// WithMaxUnsignedPerBlock caps the unsigned transactions applied per
// block. Zero means no cap.
func WithMaxUnsignedPerBlock(n int) Option {
	return func(h *Host) { h.maxUnsigned = n }
}

// WithStartBlock sets the number of the last produced block.
func WithStartBlock(n admission.BlockNumber) Option {
	return func(h *Host) { h.number = n }
}

// New creates a host applying transitions to engine and drawing unsigned
// transactions from pool.
func New(engine Dispatcher, pool *txpool.Pool, opts ...Option) (*Host, error) {
	if engine == nil {
		return nil, ErrNoEngine
	}
	h := &Host{
		engine: engine,
		pool:   pool,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.pool == nil {
		h.pool = txpool.New(admission.New(), txpool.WithLogger(h.logger))
	}
	return h, nil
}

// Pool returns the unsigned transaction pool.
func (h *Host) Pool() *txpool.Pool { return h.pool }

// Number returns the number of the last produced block.
func (h *Host) Number() admission.BlockNumber {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.number
}

// Submit queues a call for the next block. Unsigned calls must pass the
// pool's admission policy.
func (h *Host) Submit(_ context.Context, o origin.Origin, c call.Call) (call.Hash, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if o.IsNone() {
		return h.pool.Submit(admission.SourceExternal, c, h.number)
	}

	hash, err := call.HashOf(c)
	if err != nil {
		return call.Hash{}, fmt.Errorf("host: hash call: %w", err)
	}
	h.signed = append(h.signed, signedTx{hash: hash, origin: o, call: c})
	return hash, nil
}

// ProduceBlock applies every queued signed call and the ready unsigned
// transactions, in that order, as the next block.
func (h *Host) ProduceBlock(ctx context.Context) (*Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.number + 1
	block := &Block{
		Number:    next,
		Timestamp: h.clock().UTC(),
	}
	bctx := tickstream.WithBlockContext(ctx, tickstream.BlockContext{
		Number:    uint64(next),
		Timestamp: block.Timestamp,
	})

	for _, tx := range h.signed {
		err := h.engine.Dispatch(bctx, tx.origin, tx.call)
		block.Receipts = append(block.Receipts, Receipt{Hash: tx.hash, Origin: tx.origin, Call: tx.call, Err: err})
	}
	h.signed = nil

	ready := h.pool.Ready(next)
	if h.maxUnsigned > 0 && len(ready) > h.maxUnsigned {
		ready = ready[:h.maxUnsigned]
	}
	for _, tx := range ready {
		err := h.engine.Dispatch(bctx, origin.None(), tx.Call)
		h.pool.Remove(tx.Hash)
		block.Receipts = append(block.Receipts, Receipt{Hash: tx.Hash, Origin: origin.None(), Call: tx.Call, Err: err})
	}

	h.number = next

	h.logger.Info("block produced",
		"block", uint64(next),
		"transactions", len(block.Receipts),
		"failed", block.Failed(),
		"pending", h.pool.Len(),
	)
	return block, nil
}

// Run produces a block every interval until ctx is done.
func (h *Host) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := h.ProduceBlock(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
