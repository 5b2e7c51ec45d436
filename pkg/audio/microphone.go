// Package audio defines the microphone abstraction and the signal-processing
// helpers used by the conversation engine.
//
// The two primary abstractions are:
//
//   - [Microphone] grants access to a capture device and returns a [Signal].
//   - [Signal] is a live mono stream of [AudioFrame] values.
//
// Device implementations live in sub-packages (e.g., audio/malgo). The pure
// helpers in this package (resampling, quantisation, WAV framing and the
// rolling [Analyser]) carry no device dependencies and are safe to use from
// tests.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied is returned by [Microphone.Acquire] when the
	// operating system or user refused access to the capture device.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")

	// ErrNoDevice is returned by [Microphone.Acquire] when no capture device
	// is available on this host.
	ErrNoDevice = errors.New("audio: no capture device")
)

// Signal is a live microphone stream obtained from [Microphone.Acquire].
//
// The channel returned by Frames is closed when the signal is released or
// when the underlying device stops. Implementations must be safe for
// concurrent use.
type Signal interface {
	// Frames returns the read-only channel on which captured frames arrive.
	// Every call returns the same channel.
	Frames() <-chan AudioFrame

	// SampleRate reports the capture rate in Hz of every frame on Frames.
	SampleRate() int
}

// Microphone is the capture-device collaborator consumed by the engine.
// The engine is the single owner of a Signal for the duration of a mode
// session; no concurrent reader exists.
type Microphone interface {
	// Acquire opens the capture device. It returns [ErrPermissionDenied] or
	// [ErrNoDevice] (possibly wrapped) when the device cannot be used.
	Acquire(ctx context.Context) (Signal, error)

	// Release stops capture and closes the signal's frame channel. Releasing
	// an already released signal is a no-op.
	Release(sig Signal) error
}
