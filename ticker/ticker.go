// Package ticker is the tick signal source: it submits one unsigned tick
// call per interval for each configured (stream, viewer) target.
//
// The ticker never retries on its own. A rejected submission is logged
// and the next interval simply submits again.
package ticker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/tickstream/call"
	"github.com/xraph/tickstream/origin"
	"github.com/xraph/tickstream/types"
)

// Defaults.
const (
	DefaultInterval       = time.Second
	DefaultTicksPerSignal = uint32(1)
)

// ErrNoSubmitter is returned by New when no submitter is supplied.
var ErrNoSubmitter = errors.New("ticker: no submitter")

// Submitter accepts calls for inclusion. *host.Host implements it.
type Submitter interface {
	Submit(ctx context.Context, o origin.Origin, c call.Call) (call.Hash, error)
}

// Target is a metered (stream, viewer) pair.
type Target struct {
	StreamID types.StreamID
	Viewer   types.AccountID
}

func (t Target) String() string { return fmt.Sprintf("%s/%s", t.StreamID, t.Viewer) }

// Ticker emits tick calls on a fixed interval.
type Ticker struct {
	submitter Submitter
	interval  time.Duration
	ticks     uint32
	logger    *slog.Logger

	mu      sync.RWMutex
	targets []Target
}

// Option configures a Ticker.
type Option func(*Ticker)

// WithInterval sets the signal interval.
func WithInterval(d time.Duration) Option {
	return func(t *Ticker) { t.interval = d }
}

// WithTicksPerSignal sets the tick count carried by each call.
func WithTicksPerSignal(n uint32) Option {
	return func(t *Ticker) { t.ticks = n }
}

// WithTargets sets the initial targets.
func WithTargets(targets ...Target) Option {
	return func(t *Ticker) { t.targets = append(t.targets, targets...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Ticker) { t.logger = l }
}

// New creates a ticker submitting to s.
func New(s Submitter, opts ...Option) (*Ticker, error) {
	if s == nil {
		return nil, ErrNoSubmitter
	}
	t := &Ticker{
		submitter: s,
		interval:  DefaultInterval,
		ticks:     DefaultTicksPerSignal,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.interval <= 0 {
		return nil, fmt.Errorf("ticker: interval must be positive, got %s", t.interval)
	}
	if t.ticks == 0 {
		return nil, errors.New("ticker: ticks per signal must be positive")
	}
	return t, nil
}

// Add starts metering a target. Adding a target twice is a no-op.
func (t *Ticker) Add(target Target) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.targets {
		if existing == target {
			return
		}
	}
	t.targets = append(t.targets, target)
}

// Remove stops metering a target.
func (t *Ticker) Remove(target Target) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.targets {
		if existing == target {
			t.targets = append(t.targets[:i], t.targets[i+1:]...)
			return
		}
	}
}

// Targets returns a copy of the current targets.
func (t *Ticker) Targets() []Target {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Target, len(t.targets))
	copy(out, t.targets)
	return out
}

// Signal submits one tick call per target. Failed submissions are logged
// and returned joined; they do not stop the remaining targets.
func (t *Ticker) Signal(ctx context.Context) error {
	var errs []error
	for _, target := range t.Targets() {
		c := call.Tick(target.StreamID, target.Viewer, t.ticks)
		if _, err := t.submitter.Submit(ctx, origin.None(), c); err != nil {
			t.logger.Warn("ticker: submit failed",
				"stream_id", target.StreamID.String(),
				"viewer", target.Viewer.String(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("ticker: %s: %w", target, err))
		}
	}
	return errors.Join(errs...)
}

// Run signals every interval until ctx is done.
func (t *Ticker) Run(ctx context.Context) error {
	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	t.logger.Info("ticker started",
		"interval", t.interval.String(),
		"ticks", t.ticks,
		"targets", len(t.Targets()),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tk.C:
			_ = t.Signal(ctx) //nolint:errcheck // logged per target; the next interval resubmits
		}
	}
}
