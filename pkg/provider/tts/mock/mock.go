// Package mock provides a test double for the [tts.Speaker] interface.
//
// Example:
//
//	s := &mock.Speaker{}
//	_ = s.Speak(ctx, "你好")
//	// s.Spoken() == []string{"你好"}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/miniexplorer/pkg/provider/tts"
)

// Speaker is a mock implementation of [tts.Speaker].
type Speaker struct {
	mu sync.Mutex

	// SpeakErr, if non-nil, is returned from Speak and the text is not
	// recorded as spoken.
	SpeakErr error

	spoken      []string
	speakCalls  int
	cancelCalls int
	speaking    bool
}

var _ tts.Speaker = (*Speaker)(nil)

// Speak records text and marks the speaker busy until the next Cancel.
func (s *Speaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speakCalls++
	s.cancelCalls++ // Speak always cancels the previous utterance.
	s.speaking = false
	if s.SpeakErr != nil {
		return s.SpeakErr
	}
	if text != "" {
		s.spoken = append(s.spoken, text)
		s.speaking = true
	}
	return nil
}

// Cancel records the call.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelCalls++
	s.speaking = false
}

// Spoken returns every non-empty text passed to a successful Speak.
func (s *Speaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// SpeakCalls returns the number of Speak calls.
func (s *Speaker) SpeakCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speakCalls
}

// CancelCalls returns the number of cancellations, explicit or implied by
// Speak.
func (s *Speaker) CancelCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelCalls
}

// Speaking reports whether an utterance is notionally in progress.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Reset clears all recorded calls.
func (s *Speaker) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = nil
	s.speakCalls = 0
	s.cancelCalls = 0
	s.speaking = false
}
