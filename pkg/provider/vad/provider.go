// Package vad defines the Engine and Detector interfaces for voice activity
// detection.
//
// A detector classifies the current microphone energy as voice or silence
// against a threshold that is derived once per session from the ambient noise
// floor. The [Engine] is a factory so that every conversation session gets a
// freshly calibrated [Detector]; a Detector is never re-calibrated.
//
// Classification is synchronous and must not block: the conversation loop
// calls Tick on every poll.
package vad

import (
	"context"
	"errors"
	"time"
)

// Calibration defaults.
const (
	DefaultCalibrationWindow  = 300 * time.Millisecond
	DefaultCalibrationCadence = 30 * time.Millisecond
	DefaultMultiplier         = 3.0
	DefaultMinThreshold       = 0.015
	DefaultMaxThreshold       = 0.06

	// DefaultNoiseFloor is the average used when calibration collected no
	// samples at all.
	DefaultNoiseFloor = 0.005

	// DefaultThreshold is the value reported by an uncalibrated detector.
	DefaultThreshold = 0.02
)

var (
	// ErrNoSignal is returned by [Detector.Calibrate] when no signal source
	// was supplied. The caller must not start listening.
	ErrNoSignal = errors.New("vad: no signal source")

	// ErrAlreadyCalibrated is returned by [Detector.Calibrate] on a detector
	// whose threshold has already been fixed.
	ErrAlreadyCalibrated = errors.New("vad: already calibrated")
)

// Config holds the calibration parameters for a detector. Zero values are
// replaced by the package defaults.
type Config struct {
	// CalibrationWindow is how long ambient energy is sampled.
	CalibrationWindow time.Duration

	// CalibrationCadence is the interval between ambient samples.
	CalibrationCadence time.Duration

	// Multiplier scales the averaged noise floor into the threshold.
	Multiplier float64

	// MinThreshold and MaxThreshold clamp the calibrated threshold.
	MinThreshold float64
	MaxThreshold float64

	// FixedThreshold, when positive, skips sampling: Calibrate immediately
	// adopts this value (still clamped).
	FixedThreshold float64
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.CalibrationWindow <= 0 {
		c.CalibrationWindow = DefaultCalibrationWindow
	}
	if c.CalibrationCadence <= 0 {
		c.CalibrationCadence = DefaultCalibrationCadence
	}
	if c.Multiplier <= 0 {
		c.Multiplier = DefaultMultiplier
	}
	if c.MinThreshold <= 0 {
		c.MinThreshold = DefaultMinThreshold
	}
	if c.MaxThreshold <= 0 {
		c.MaxThreshold = DefaultMaxThreshold
	}
	return c
}

// Level is a signal source that reports the current RMS energy of the
// microphone. [*audio.Analyser] satisfies it.
type Level interface {
	Level() float64
}

// Result is the classification of one poll.
type Result struct {
	// IsVoice reports whether RMS exceeded the threshold.
	IsVoice bool

	// RMS is the measured energy.
	RMS float64
}

// State is a snapshot of a detector's internal state.
type State struct {
	// Threshold is the voice/silence boundary in RMS units.
	Threshold float64

	// LastVoice is the time of the most recent voice tick, or zero.
	LastVoice time.Time

	// Calibrated reports whether Threshold has been fixed for the session.
	Calibrated bool
}

// Detector classifies microphone energy for a single conversation session.
//
// Implementations must be safe for concurrent use: the conversation loop
// ticks the detector while the engine may read its State from another
// goroutine.
type Detector interface {
	// Calibrate samples src for the configured window and fixes the
	// threshold. It returns [ErrNoSignal] when src is nil and ctx.Err() when
	// cancelled before the window elapsed.
	Calibrate(ctx context.Context, src Level) (float64, error)

	// Classify is a pure function of the samples' energy and the current
	// threshold.
	Classify(samples []float32) Result

	// Tick classifies src's current level and records now as the last voice
	// time when voice is present.
	Tick(now time.Time, src Level) Result

	// SilentFor returns how long it has been since the last voice tick. It
	// returns zero when no voice has been observed.
	SilentFor(now time.Time) time.Duration

	// State returns a snapshot of the detector state.
	State() State

	// Reset forgets the last voice time. The threshold is kept.
	Reset()
}

// Engine is the factory for detectors. Implementations must be safe for
// concurrent use.
type Engine interface {
	// NewDetector returns an uncalibrated detector for cfg.
	NewDetector(cfg Config) (Detector, error)
}
