package tickstream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/tickstream/call"
	"github.com/xraph/tickstream/escrow"
	"github.com/xraph/tickstream/funds"
	"github.com/xraph/tickstream/plugin"
	"github.com/xraph/tickstream/store"
)

// Engine applies stream, escrow and metering transitions to a store.
//
// Transitions are serialised: each call observes the committed result of
// every call before it, and either commits fully (store writes, funds
// movement, events) or leaves the ledger unchanged.
type Engine struct {
	store   store.Store
	funds   funds.Ledger
	plugins *plugin.Registry
	logger  *slog.Logger
	policy  escrow.Policy

	mu sync.Mutex
}

// New creates an Engine over the given store and funds ledger.
func New(s store.Store, f funds.Ledger, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		funds:   f,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		policy:  escrow.PolicyOverwrite,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithReservationPolicy selects what a repeated join does with an unspent
// reservation. The default is escrow.PolicyOverwrite.
func WithReservationPolicy(p escrow.Policy) Option {
	return func(e *Engine) {
		if p != "" {
			e.policy = p
		}
	}
}

// Start migrates the store and initialises plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("tickstream started",
		"reservation_policy", e.policy,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// Plugins returns the engine's plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// ReservationPolicy returns the configured re-join policy.
func (e *Engine) ReservationPolicy() escrow.Policy { return e.policy }

// ──────────────────────────────────────────────────
// Block context
// ──────────────────────────────────────────────────

// BlockContext is the ordering context the host applies transitions in.
// Its timestamp stamps records; the engine never reads the wall clock.
type BlockContext struct {
	Number    uint64
	Timestamp time.Time
}

type blockContextKey struct{}

// WithBlockContext returns a context carrying the block being applied.
func WithBlockContext(ctx context.Context, b BlockContext) context.Context {
	return context.WithValue(ctx, blockContextKey{}, b)
}

// BlockFromContext returns the block carried by ctx, if any.
func BlockFromContext(ctx context.Context) (BlockContext, bool) {
	b, ok := ctx.Value(blockContextKey{}).(BlockContext)
	return b, ok
}

func blockOf(ctx context.Context) BlockContext {
	b, _ := BlockFromContext(ctx)
	return b
}

// reject reports a failed transition to diagnostic plugins.
func (e *Engine) reject(ctx context.Context, c call.Call, err error) {
	e.logger.Debug("transition rejected",
		"call", c.Kind.String(),
		"stream_id", c.StreamID.String(),
		"error", err,
	)
	e.plugins.EmitTransitionRejected(ctx, c, err)
}
