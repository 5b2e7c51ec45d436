package resilience

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/miniexplorer/pkg/provider/tts"
)

// SpeakerFallback implements [tts.Speaker] over several engines in
// preference order. Each engine has its own circuit breaker, so one that
// keeps failing to start is skipped until its reset timeout elapses.
type SpeakerFallback struct {
	group *FallbackGroup[namedSpeaker]

	mu     sync.Mutex
	active string
}

type namedSpeaker struct {
	name string
	tts.Speaker
}

var _ tts.Speaker = (*SpeakerFallback)(nil)

// NewSpeakerFallback creates a [SpeakerFallback] with primary as the
// preferred engine.
func NewSpeakerFallback(primary tts.Speaker, primaryName string, cfg FallbackConfig) *SpeakerFallback {
	return &SpeakerFallback{
		group: NewFallbackGroup(namedSpeaker{primaryName, primary}, primaryName, cfg),
	}
}

// AddFallback registers another engine after the existing ones.
func (f *SpeakerFallback) AddFallback(name string, s tts.Speaker) {
	f.group.AddFallback(name, namedSpeaker{name, s})
}

// Engines returns the engine names in preference order.
func (f *SpeakerFallback) Engines() []string { return f.group.Names() }

// Active returns the engine that started the last utterance, or "".
func (f *SpeakerFallback) Active() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Speak stops every engine, then starts text on the first engine that
// accepts it. Empty text only stops.
func (f *SpeakerFallback) Speak(ctx context.Context, text string) error {
	f.Cancel()
	if strings.TrimSpace(text) == "" {
		return nil
	}
	name, err := ExecuteWithResult(f.group, func(s namedSpeaker) (string, error) {
		return s.name, s.Speak(ctx, text)
	})
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.active = name
	f.mu.Unlock()
	return nil
}

// Cancel implements [tts.Speaker] by cancelling every engine.
func (f *SpeakerFallback) Cancel() {
	f.group.Each(func(_ string, s namedSpeaker) { s.Cancel() })
}
