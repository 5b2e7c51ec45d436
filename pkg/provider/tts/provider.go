// Package tts defines the Speaker interface for reply playback.
//
// A Speaker renders one utterance at a time. Speak returns as soon as the
// utterance has started (or failed to start) and playback continues in the
// background; a new Speak call first cancels whatever is still playing.
// Callers treat speech as best effort: a reply that cannot be spoken is still
// shown to the user.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrUnsupported is returned when no speech engine is available on this
// host.
var ErrUnsupported = errors.New("tts: speech synthesis unsupported")

// Speaker renders reply text as audio.
type Speaker interface {
	// Speak cancels any utterance in progress and starts speaking text.
	// Cancelling ctx stops the new utterance. Speaking empty text only
	// cancels. The returned error reports a failure to start; errors during
	// playback are logged by the implementation.
	Speak(ctx context.Context, text string) error

	// Cancel stops the current utterance, if any.
	Cancel()
}
