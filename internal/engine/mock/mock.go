// Package mock provides recording implementations of [engine.Observer] and
// [engine.Host] for use in unit tests.
//
// Both are safe for concurrent use. Observer keeps every event in arrival
// order and offers helpers to wait for a state or to extract the state path.
//
// Example:
//
//	obs := &mock.Observer{}
//	host := &mock.Host{}
//	e, _ := engine.New(cfg, engine.WithObserver(obs))
//	obs.WaitState(t, engine.StateListening)
package mock

import (
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/miniexplorer/internal/engine"
)

// Compile-time interface assertions.
var (
	_ engine.Observer = (*Observer)(nil)
	_ engine.Host     = (*Host)(nil)
)

// DefaultWait bounds the Wait* helpers.
const DefaultWait = 3 * time.Second

// Observer records every event passed to OnEvent.
type Observer struct {
	mu     sync.Mutex
	events []engine.Event
}

// OnEvent implements [engine.Observer].
func (o *Observer) OnEvent(ev engine.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

// Events returns a copy of every recorded event.
func (o *Observer) Events() []engine.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]engine.Event(nil), o.events...)
}

// Kind returns the recorded events of kind k.
func (o *Observer) Kind(k engine.EventKind) []engine.Event {
	var out []engine.Event
	for _, ev := range o.Events() {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

// States returns the sequence of entered states.
func (o *Observer) States() []engine.State {
	var out []engine.State
	for _, ev := range o.Kind(engine.EventState) {
		out = append(out, ev.State)
	}
	return out
}

// Hints returns the sequence of hint texts, including clears.
func (o *Observer) Hints() []string {
	var out []string
	for _, ev := range o.Kind(engine.EventCameraHint) {
		out = append(out, ev.Hint)
	}
	return out
}

// Count returns how many times st was entered.
func (o *Observer) Count(st engine.State) int {
	n := 0
	for _, s := range o.States() {
		if s == st {
			n++
		}
	}
	return n
}

// Reset forgets all recorded events.
func (o *Observer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = nil
}

// WaitFor polls until cond holds on the recorded events or fails t after
// [DefaultWait].
func (o *Observer) WaitFor(t testing.TB, what string, cond func(events []engine.Event) bool) {
	t.Helper()
	deadline := time.Now().Add(DefaultWait)
	for !cond(o.Events()) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; states so far: %v", what, o.States())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// WaitState waits until st has been entered n times (at least once when n
// is omitted).
func (o *Observer) WaitState(t testing.TB, st engine.State, n ...int) {
	t.Helper()
	want := 1
	if len(n) > 0 {
		want = n[0]
	}
	o.WaitFor(t, "state "+st.String(), func([]engine.Event) bool { return o.Count(st) >= want })
}

// Host records NavigateHome calls.
type Host struct {
	mu    sync.Mutex
	calls int
	// OnNavigate, if set, runs on every call.
	OnNavigate func()
}

// NavigateHome implements [engine.Host].
func (h *Host) NavigateHome() {
	h.mu.Lock()
	h.calls++
	fn := h.OnNavigate
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Calls returns the number of NavigateHome calls.
func (h *Host) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}
