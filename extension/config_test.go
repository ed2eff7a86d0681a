package extension

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/tickstream"
	"github.com/xraph/tickstream/admission"
	"github.com/xraph/tickstream/call"
	"github.com/xraph/tickstream/types"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"Unknown policy", func(c *Config) { c.ReservationPolicy = "replace-all" }},
		{"Unknown scope", func(c *Config) { c.TagScope = "planet" }},
		{"Zero longevity", func(c *Config) { c.Longevity = 0 }},
		{"Negative block cap", func(c *Config) { c.MaxUnsignedPerBlock = -1 }},
		{"Negative block time", func(c *Config) { c.BlockTime = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, tickstream.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestAdmissionOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Priority = 7
	cfg.Longevity = 3
	cfg.MaxTicks = 2
	cfg.TagScope = "global"

	p := admission.New(cfg.admissionOptions()...)
	if p.Scope() != admission.TagScopeGlobal {
		t.Errorf("scope: got %s, want global", p.Scope())
	}

	c := call.Tick(types.StreamIDFromUint64(1), "alice", 2)
	v, err := p.Validate(admission.SourceExternal, c)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if v.Priority != 7 || v.Longevity != 3 {
		t.Errorf("validity: got priority %d longevity %d", v.Priority, v.Longevity)
	}

	over := call.Tick(types.StreamIDFromUint64(1), "alice", 3)
	if _, err := p.Validate(admission.SourceExternal, over); !errors.Is(err, admission.ErrInvalidTicks) {
		t.Errorf("expected ErrInvalidTicks, got %v", err)
	}

	cfg.DisableMaxTicks = true
	p = admission.New(cfg.admissionOptions()...)
	if _, err := p.Validate(admission.SourceExternal, over); err != nil {
		t.Errorf("max ticks disabled: unexpected error %v", err)
	}
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{DisableTicker: true, Priority: 9})
	def := DefaultConfig()

	if !cfg.DisableTicker {
		t.Error("expected DisableTicker to survive merge")
	}
	if cfg.Priority != 9 {
		t.Errorf("priority: got %d, want 9", cfg.Priority)
	}
	if cfg.ReservationPolicy != def.ReservationPolicy {
		t.Errorf("policy: got %q, want %q", cfg.ReservationPolicy, def.ReservationPolicy)
	}
	if cfg.BlockTime != def.BlockTime || cfg.TickInterval != def.TickInterval {
		t.Errorf("durations not defaulted: %v %v", cfg.BlockTime, cfg.TickInterval)
	}
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{TagScope: "global", BlockTime: 2 * time.Second}
	prog := Config{
		TagScope:            "stream",
		ReservationPolicy:   "accumulate",
		DisableMigrate:      true,
		MaxUnsignedPerBlock: 10,
	}

	cfg := mergeConfigurations(yaml, prog)

	if cfg.TagScope != "global" {
		t.Errorf("yaml scope should win, got %q", cfg.TagScope)
	}
	if cfg.ReservationPolicy != "accumulate" {
		t.Errorf("programmatic policy should fill gap, got %q", cfg.ReservationPolicy)
	}
	if !cfg.DisableMigrate {
		t.Error("programmatic DisableMigrate should be kept")
	}
	if cfg.BlockTime != 2*time.Second {
		t.Errorf("block time: got %v", cfg.BlockTime)
	}
	if cfg.MaxUnsignedPerBlock != 10 {
		t.Errorf("max unsigned: got %d", cfg.MaxUnsignedPerBlock)
	}
	if cfg.Longevity != admission.DefaultLongevity {
		t.Errorf("longevity: got %d", cfg.Longevity)
	}
}

func TestNewAppliesOptions(t *testing.T) {
	e := New(WithDisableMigrate(), WithTagScope("global"), WithBlockTime(time.Second))
	if !e.config.DisableMigrate || e.config.TagScope != "global" || e.config.BlockTime != time.Second {
		t.Errorf("options not applied: %+v", e.config)
	}
	if e.Engine() != nil {
		t.Error("engine should be nil before Register")
	}
}
