package extension

import (
	"fmt"
	"time"

	"github.com/xraph/tickstream"
	"github.com/xraph/tickstream/admission"
	"github.com/xraph/tickstream/escrow"
)

// Config holds the tickstream extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tickstream" or "tickstream" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// ReservationPolicy is "overwrite" (default) or "accumulate".
	ReservationPolicy string `json:"reservation_policy" mapstructure:"reservation_policy" yaml:"reservation_policy"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// Priority is the pool priority of every admitted tick (default: 100).
	Priority uint64 `json:"priority" mapstructure:"priority" yaml:"priority"`

	// Longevity is how many blocks an admitted tick stays valid (default: 5).
	Longevity uint64 `json:"longevity" mapstructure:"longevity" yaml:"longevity"`

	// MaxTicks bounds the tick count of one unsigned call (default: 60).
	MaxTicks uint32 `json:"max_ticks" mapstructure:"max_ticks" yaml:"max_ticks"`

	// DisableMaxTicks lifts the MaxTicks bound.
	DisableMaxTicks bool `json:"disable_max_ticks" mapstructure:"disable_max_ticks" yaml:"disable_max_ticks"`

	// TagScope is "stream" (default) or "global".
	TagScope string `json:"tag_scope" mapstructure:"tag_scope" yaml:"tag_scope"`

	// BlockTime is the interval between produced blocks (default: 6s).
	BlockTime time.Duration `json:"block_time" mapstructure:"block_time" yaml:"block_time"`

	// DisableBlockProduction stops the extension from producing blocks on
	// its own; the host is still provided for manual ProduceBlock calls.
	DisableBlockProduction bool `json:"disable_block_production" mapstructure:"disable_block_production" yaml:"disable_block_production"`

	// MaxUnsignedPerBlock caps unsigned transactions per block (default: no cap).
	MaxUnsignedPerBlock int `json:"max_unsigned_per_block" mapstructure:"max_unsigned_per_block" yaml:"max_unsigned_per_block"`

	// TickInterval is the ticker's signal interval (default: 1s).
	TickInterval time.Duration `json:"tick_interval" mapstructure:"tick_interval" yaml:"tick_interval"`

	// DisableTicker stops the extension from running the tick signal source.
	DisableTicker bool `json:"disable_ticker" mapstructure:"disable_ticker" yaml:"disable_ticker"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReservationPolicy: string(escrow.PolicyOverwrite),
		PluginTimeout:     5 * time.Second,
		Priority:          admission.DefaultPriority,
		Longevity:         admission.DefaultLongevity,
		MaxTicks:          admission.DefaultMaxTicks,
		TagScope:          string(admission.TagScopeStream),
		BlockTime:         6 * time.Second,
		TickInterval:      time.Second,
	}
}

// Validate checks the enumerated and bounded fields.
func (c Config) Validate() error {
	var errs tickstream.MultiError

	if _, err := escrow.ParsePolicy(c.ReservationPolicy); err != nil {
		errs.Add(tickstream.ValidationError{Field: "reservation_policy", Message: err.Error()})
	}
	if _, err := admission.ParseTagScope(c.TagScope); err != nil {
		errs.Add(tickstream.ValidationError{Field: "tag_scope", Message: err.Error()})
	}
	if c.Longevity == 0 {
		errs.Add(tickstream.ValidationError{Field: "longevity", Message: "must be at least one block"})
	}
	if c.MaxUnsignedPerBlock < 0 {
		errs.Add(tickstream.ValidationError{Field: "max_unsigned_per_block", Message: "must not be negative"})
	}
	if c.BlockTime < 0 || c.TickInterval < 0 || c.PluginTimeout < 0 {
		errs.Add(tickstream.ValidationError{Field: "durations", Message: "must not be negative"})
	}

	if err := errs.ErrOrNil(); err != nil {
		return fmt.Errorf("%w: config: %w", tickstream.ErrInvalidInput, err)
	}
	return nil
}

// admissionOptions maps the config onto admission.Policy options.
func (c Config) admissionOptions() []admission.Option {
	scope, _ := admission.ParseTagScope(c.TagScope) //nolint:errcheck // checked by Validate
	maxTicks := c.MaxTicks
	if c.DisableMaxTicks {
		maxTicks = 0
	}
	return []admission.Option{
		admission.WithPriority(c.Priority),
		admission.WithLongevity(c.Longevity),
		admission.WithMaxTicks(maxTicks),
		admission.WithTagScope(scope),
	}
}
