package event

import (
	"context"
	"sync"
)

// Recorder is a plugin that keeps every emitted event in memory, in
// emission order. Hosts use it as a simple event sink; tests use it to
// assert on what a transition emitted.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Name implements plugin.Plugin.
func (r *Recorder) Name() string { return "event-recorder" }

// OnStreamCreated implements plugin.OnStreamCreated.
func (r *Recorder) OnStreamCreated(_ context.Context, e StreamCreated) error {
	r.add(e)
	return nil
}

// OnViewerJoined implements plugin.OnViewerJoined.
func (r *Recorder) OnViewerJoined(_ context.Context, e ViewerJoined) error {
	r.add(e)
	return nil
}

// OnTickProcessed implements plugin.OnTickProcessed.
func (r *Recorder) OnTickProcessed(_ context.Context, e TickProcessed) error {
	r.add(e)
	return nil
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
