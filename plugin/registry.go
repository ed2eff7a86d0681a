package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/tickstream/call"
	"github.com/xraph/tickstream/event"
)

// DefaultTimeout bounds a single plugin call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emission never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit               []OnInit
	onShutdown           []OnShutdown
	onStreamCreated      []OnStreamCreated
	onViewerJoined       []OnViewerJoined
	onTickProcessed      []OnTickProcessed
	onTransitionRejected []OnTransitionRejected
	onCompensationFailed []OnCompensationFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call plugin timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnStreamCreated); ok {
		r.onStreamCreated = append(r.onStreamCreated, v)
	}
	if v, ok := p.(OnViewerJoined); ok {
		r.onViewerJoined = append(r.onViewerJoined, v)
	}
	if v, ok := p.(OnTickProcessed); ok {
		r.onTickProcessed = append(r.onTickProcessed, v)
	}
	if v, ok := p.(OnTransitionRejected); ok {
		r.onTransitionRejected = append(r.onTransitionRejected, v)
	}
	if v, ok := p.(OnCompensationFailed); ok {
		r.onCompensationFailed = append(r.onCompensationFailed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []reflect.Type{
	reflect.TypeOf((*OnInit)(nil)).Elem(),
	reflect.TypeOf((*OnShutdown)(nil)).Elem(),
	reflect.TypeOf((*OnStreamCreated)(nil)).Elem(),
	reflect.TypeOf((*OnViewerJoined)(nil)).Elem(),
	reflect.TypeOf((*OnTickProcessed)(nil)).Elem(),
	reflect.TypeOf((*OnTransitionRejected)(nil)).Elem(),
	reflect.TypeOf((*OnCompensationFailed)(nil)).Elem(),
}

// implementedInterfaces lists the hook interfaces p implements.
func implementedInterfaces(p Plugin) []string {
	t := reflect.TypeOf(p)
	var names []string
	for _, hook := range hookTypes {
		if t.Implements(hook) {
			names = append(names, hook.Name())
		}
	}
	return names
}

// Get returns a plugin by name, or nil.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnInit", func() error { return p.OnInit(ctx, engine) })
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnShutdown", func() error { return p.OnShutdown(ctx) })
	}
}

// EmitStreamCreated emits a stream created event.
func (r *Registry) EmitStreamCreated(ctx context.Context, e event.StreamCreated) {
	r.mu.RLock()
	plugins := r.onStreamCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnStreamCreated", func() error { return p.OnStreamCreated(ctx, e) })
	}
}

// EmitViewerJoined emits a viewer joined event.
func (r *Registry) EmitViewerJoined(ctx context.Context, e event.ViewerJoined) {
	r.mu.RLock()
	plugins := r.onViewerJoined
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnViewerJoined", func() error { return p.OnViewerJoined(ctx, e) })
	}
}

// EmitTickProcessed emits a tick processed event.
func (r *Registry) EmitTickProcessed(ctx context.Context, e event.TickProcessed) {
	r.mu.RLock()
	plugins := r.onTickProcessed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnTickProcessed", func() error { return p.OnTickProcessed(ctx, e) })
	}
}

// EmitTransitionRejected reports a failed transition.
func (r *Registry) EmitTransitionRejected(ctx context.Context, c call.Call, cause error) {
	r.mu.RLock()
	plugins := r.onTransitionRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnTransitionRejected", func() error { return p.OnTransitionRejected(ctx, c, cause) })
	}
}

// EmitCompensationFailed reports a funds compensation that did not apply.
func (r *Registry) EmitCompensationFailed(ctx context.Context, c call.Call, cause error) {
	r.mu.RLock()
	plugins := r.onCompensationFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnCompensationFailed", func() error { return p.OnCompensationFailed(ctx, c, cause) })
	}
}

func (r *Registry) call(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins must never block the transition pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
