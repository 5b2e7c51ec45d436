package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/miniexplorer/pkg/provider/tts"
)

// ErrEngineNotRegistered is returned by [Registry.CreateSpeaker] when no
// factory has been registered under the requested engine name.
var ErrEngineNotRegistered = errors.New("config: speech engine not registered")

// SpeakerFactory builds a speaker from its voice entry.
type SpeakerFactory func(VoiceConfig) (tts.Speaker, error)

// Registry maps speech engine names to constructors. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	speakers map[string]SpeakerFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{speakers: make(map[string]SpeakerFactory)}
}

// RegisterSpeaker registers a factory under name. Subsequent calls with the
// same name overwrite the previous registration.
func (r *Registry) RegisterSpeaker(name string, factory SpeakerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speakers[name] = factory
}

// Engines returns the registered engine names, sorted.
func (r *Registry) Engines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.speakers))
	for n := range r.speakers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// CreateSpeaker instantiates the engine named by v.Engine.
// Returns [ErrEngineNotRegistered] if no factory has been registered for it.
func (r *Registry) CreateSpeaker(v VoiceConfig) (tts.Speaker, error) {
	r.mu.RLock()
	factory, ok := r.speakers[v.Engine]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEngineNotRegistered, v.Engine)
	}
	return factory(v)
}

// CreateSpeakers instantiates every voice in order. Engines that fail to
// start are skipped and their errors joined; the result is empty only when
// none could be created.
func (r *Registry) CreateSpeakers(voices []VoiceConfig) ([]tts.Speaker, []string, error) {
	var (
		out   []tts.Speaker
		names []string
		errs  []error
	)
	for _, v := range voices {
		s, err := r.CreateSpeaker(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", v.Engine, err))
			continue
		}
		out = append(out, s)
		names = append(names, v.Engine)
	}
	return out, names, errors.Join(errs...)
}
