// Package extension provides the Forge extension adapter for tickstream.
//
// It implements the forge.Extension interface to integrate the engine,
// the admission policy, the transaction pool and the block host into a
// Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tickstream" or
// "tickstream" keys.
package extension

import (
	"context"
	"errors"
	"sync"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/tickstream"
	"github.com/xraph/tickstream/admission"
	"github.com/xraph/tickstream/escrow"
	"github.com/xraph/tickstream/funds"
	fundsmem "github.com/xraph/tickstream/funds/memory"
	"github.com/xraph/tickstream/host"
	"github.com/xraph/tickstream/store"
	"github.com/xraph/tickstream/store/memory"
	"github.com/xraph/tickstream/ticker"
	"github.com/xraph/tickstream/txpool"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tickstream"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Pay-per-second stream escrow and metering ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts tickstream as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	engine      *tickstream.Engine
	policy      *admission.Policy
	pool        *txpool.Pool
	host        *host.Host
	ticker      *ticker.Ticker
	store       store.Store
	funds       funds.Ledger
	engineOpts  []tickstream.Option
	tickTargets []ticker.Target

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new tickstream Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *tickstream.Engine { return e.engine }

// Host returns the block host. This is nil until Register is called.
func (e *Extension) Host() *host.Host { return e.host }

// Ticker returns the tick signal source. This is nil until Register is called.
func (e *Extension) Ticker() *ticker.Ticker { return e.ticker }

// Register implements [forge.Extension]. It loads configuration, builds
// the engine and its host, and registers them in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}
	if err := e.config.Validate(); err != nil {
		return err
	}

	if err := e.build(); err != nil {
		return err
	}

	c := fapp.Container()
	if err := vessel.Provide(c, func() (*tickstream.Engine, error) { return e.engine, nil }); err != nil {
		return err
	}
	if err := vessel.Provide(c, func() (*admission.Policy, error) { return e.policy, nil }); err != nil {
		return err
	}
	if err := vessel.Provide(c, func() (*txpool.Pool, error) { return e.pool, nil }); err != nil {
		return err
	}
	if err := vessel.Provide(c, func() (*host.Host, error) { return e.host, nil }); err != nil {
		return err
	}
	return vessel.Provide(c, func() (*ticker.Ticker, error) { return e.ticker, nil })
}

// build constructs the engine, admission policy, pool, host and ticker
// from the resolved config.
func (e *Extension) build() error {
	// Use in-memory backends if none were provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}
	if e.funds == nil {
		e.funds = fundsmem.New()
	}

	e.engine = tickstream.New(e.store, e.funds, e.buildEngineOpts()...)
	e.policy = admission.New(e.config.admissionOptions()...)
	e.pool = txpool.New(e.policy)

	h, err := host.New(e.engine, e.pool, host.WithMaxUnsignedPerBlock(e.config.MaxUnsignedPerBlock))
	if err != nil {
		return err
	}
	e.host = h

	t, err := ticker.New(e.host,
		ticker.WithInterval(e.config.TickInterval),
		ticker.WithTargets(e.tickTargets...),
	)
	if err != nil {
		return err
	}
	e.ticker = t
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("tickstream: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	if !e.config.DisableBlockProduction && e.config.BlockTime > 0 {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.host.Run(runCtx, e.config.BlockTime); err != nil {
				e.Logger().Error("tickstream: block production stopped",
					forge.F("error", err.Error()),
				)
			}
		}()
	}
	if !e.config.DisableTicker {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			_ = e.ticker.Run(runCtx) //nolint:errcheck // Run only returns on cancellation
		}()
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
	}
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tickstream: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs tickstream.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []tickstream.Option {
	opts := make([]tickstream.Option, 0, len(e.engineOpts)+2)

	policy, _ := escrow.ParsePolicy(e.config.ReservationPolicy) //nolint:errcheck // checked by Validate
	opts = append(opts, tickstream.WithReservationPolicy(policy))

	if e.config.PluginTimeout > 0 {
		opts = append(opts, tickstream.WithPluginTimeout(e.config.PluginTimeout))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tickstream: configuration is required but not found in config files; " +
				"ensure 'extensions.tickstream' or 'tickstream' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tickstream: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("reservation_policy", e.config.ReservationPolicy),
		forge.F("tag_scope", e.config.TagScope),
		forge.F("priority", e.config.Priority),
		forge.F("longevity", e.config.Longevity),
		forge.F("max_ticks", e.config.MaxTicks),
		forge.F("block_time", e.config.BlockTime),
		forge.F("tick_interval", e.config.TickInterval),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.tickstream" first (namespaced pattern).
	if cm.IsSet("extensions.tickstream") {
		if err := cm.Bind("extensions.tickstream", &cfg); err == nil {
			e.Logger().Debug("tickstream: loaded config from file",
				forge.F("key", "extensions.tickstream"),
			)
			return cfg, true
		}
		e.Logger().Warn("tickstream: failed to bind extensions.tickstream config",
			forge.F("error", "bind failed"),
		)
	}

	// Try short "tickstream" key.
	if cm.IsSet("tickstream") {
		if err := cm.Bind("tickstream", &cfg); err == nil {
			e.Logger().Debug("tickstream: loaded config from file",
				forge.F("key", "tickstream"),
			)
			return cfg, true
		}
		e.Logger().Warn("tickstream: failed to bind tickstream config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.ReservationPolicy == "" {
		cfg.ReservationPolicy = defaults.ReservationPolicy
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	if cfg.Priority == 0 {
		cfg.Priority = defaults.Priority
	}
	if cfg.Longevity == 0 {
		cfg.Longevity = defaults.Longevity
	}
	if cfg.MaxTicks == 0 {
		cfg.MaxTicks = defaults.MaxTicks
	}
	if cfg.TagScope == "" {
		cfg.TagScope = defaults.TagScope
	}
	if cfg.BlockTime == 0 {
		cfg.BlockTime = defaults.BlockTime
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = defaults.TickInterval
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableMaxTicks {
		yamlConfig.DisableMaxTicks = true
	}
	if programmaticConfig.DisableBlockProduction {
		yamlConfig.DisableBlockProduction = true
	}
	if programmaticConfig.DisableTicker {
		yamlConfig.DisableTicker = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.ReservationPolicy == "" {
		yamlConfig.ReservationPolicy = programmaticConfig.ReservationPolicy
	}
	if yamlConfig.TagScope == "" {
		yamlConfig.TagScope = programmaticConfig.TagScope
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}
	if yamlConfig.Priority == 0 {
		yamlConfig.Priority = programmaticConfig.Priority
	}
	if yamlConfig.Longevity == 0 {
		yamlConfig.Longevity = programmaticConfig.Longevity
	}
	if yamlConfig.MaxTicks == 0 {
		yamlConfig.MaxTicks = programmaticConfig.MaxTicks
	}
	if yamlConfig.BlockTime == 0 {
		yamlConfig.BlockTime = programmaticConfig.BlockTime
	}
	if yamlConfig.TickInterval == 0 {
		yamlConfig.TickInterval = programmaticConfig.TickInterval
	}
	if yamlConfig.MaxUnsignedPerBlock == 0 {
		yamlConfig.MaxUnsignedPerBlock = programmaticConfig.MaxUnsignedPerBlock
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
