package extension

import (
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/tickstream"
	"github.com/xraph/tickstream/escrow"
	"github.com/xraph/tickstream/funds"
	fundsredis "github.com/xraph/tickstream/funds/redis"
	"github.com/xraph/tickstream/plugin"
	"github.com/xraph/tickstream/store"
	"github.com/xraph/tickstream/ticker"
)

// Option configures the tickstream Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithFunds sets the funds ledger the engine reserves and transfers on.
func WithFunds(f funds.Ledger) Option {
	return func(e *Extension) {
		e.funds = f
	}
}

// WithRedisFunds uses a Redis-backed funds ledger.
func WithRedisFunds(rdb goredis.UniversalClient, opts ...fundsredis.Option) Option {
	return func(e *Extension) {
		e.funds = fundsredis.New(rdb, opts...)
	}
}

// WithEngineOption passes a tickstream.Option through to the underlying engine.
func WithEngineOption(opt tickstream.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a tickstream plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, tickstream.WithPlugin(p))
	}
}

// WithTickTargets sets the (stream, viewer) pairs the ticker meters from start.
func WithTickTargets(targets ...ticker.Target) Option {
	return func(e *Extension) {
		e.tickTargets = append(e.tickTargets, targets...)
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithReservationPolicy selects what a repeated join does with an unspent
// reservation.
func WithReservationPolicy(p escrow.Policy) Option {
	return func(e *Extension) { e.config.ReservationPolicy = string(p) }
}

// WithTagScope sets the admission dedup tag scope ("stream" or "global").
func WithTagScope(scope string) Option {
	return func(e *Extension) { e.config.TagScope = scope }
}

// WithBlockTime sets the interval between produced blocks.
func WithBlockTime(d time.Duration) Option {
	return func(e *Extension) { e.config.BlockTime = d }
}

// WithDisableBlockProduction stops automatic block production.
func WithDisableBlockProduction() Option {
	return func(e *Extension) { e.config.DisableBlockProduction = true }
}

// WithTickInterval sets the ticker's signal interval.
func WithTickInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.TickInterval = d }
}

// WithDisableTicker stops the extension from running the tick signal source.
func WithDisableTicker() Option {
	return func(e *Extension) { e.config.DisableTicker = true }
}
