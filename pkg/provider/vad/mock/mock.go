// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that detectors are created with the expected Config.
// Use Detector to script voice/silence ticks and inspect how often the
// detector was polled.
//
// Example:
//
//	det := &mock.Detector{CalibrateResult: 0.03}
//	det.Script(true, true, false)
//	eng := &mock.Engine{Detector: det}
//	d, _ := eng.NewDetector(cfg)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/miniexplorer/pkg/provider/vad"
)

// NewDetectorCall records a single invocation of Engine.NewDetector.
type NewDetectorCall struct {
	// Cfg is the Config passed to NewDetector.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Detector is returned by NewDetector. If nil, NewDetector returns a new
	// default Detector.
	Detector vad.Detector

	// NewDetectorErr, if non-nil, is returned as the error from NewDetector.
	NewDetectorErr error

	// NewDetectorCalls records every call to NewDetector in order.
	NewDetectorCalls []NewDetectorCall
}

// NewDetector records the call and returns Detector, NewDetectorErr.
func (e *Engine) NewDetector(cfg vad.Config) (vad.Detector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewDetectorCalls = append(e.NewDetectorCalls, NewDetectorCall{Cfg: cfg})
	if e.NewDetectorErr != nil {
		return nil, e.NewDetectorErr
	}
	if e.Detector != nil {
		return e.Detector, nil
	}
	return &Detector{}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Detector is a mock implementation of vad.Detector. Each Tick pops the next
// scripted voice flag; once the script is exhausted every tick reports
// Default.
type Detector struct {
	mu sync.Mutex

	// CalibrateResult is returned by Calibrate when CalibrateErr is nil.
	CalibrateResult float64

	// CalibrateErr, if non-nil, is returned by Calibrate.
	CalibrateErr error

	// Default is the voice flag reported after the script runs out.
	Default bool

	script     []bool
	threshold  float64
	lastVoice  time.Time
	calibrated bool

	// --- Call records ---

	// CalibrateCallCount is the number of times Calibrate was called.
	CalibrateCallCount int

	// TickCallCount is the number of times Tick was called.
	TickCallCount int

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int
}

// Script appends voice flags to be returned by subsequent Tick calls.
func (d *Detector) Script(voice ...bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, voice...)
}

// SetDefault changes the flag reported once the script is exhausted.
func (d *Detector) SetDefault(voice bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Default = voice
}

// Calibrate records the call and returns CalibrateResult, CalibrateErr.
// A nil src yields vad.ErrNoSignal like a real detector.
func (d *Detector) Calibrate(ctx context.Context, src vad.Level) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CalibrateCallCount++
	if src == nil {
		return 0, vad.ErrNoSignal
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if d.CalibrateErr != nil {
		return 0, d.CalibrateErr
	}
	d.threshold = d.CalibrateResult
	d.calibrated = true
	return d.CalibrateResult, nil
}

// Classify compares the samples' peak against the threshold.
func (d *Detector) Classify(samples []float32) vad.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	var peak float64
	for _, s := range samples {
		if v := float64(s); v > peak {
			peak = v
		} else if -v > peak {
			peak = -v
		}
	}
	return vad.Result{IsVoice: peak > d.threshold, RMS: peak}
}

// Tick records the call and returns the next scripted flag.
func (d *Detector) Tick(now time.Time, _ vad.Level) vad.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.TickCallCount++
	voice := d.Default
	if len(d.script) > 0 {
		voice = d.script[0]
		d.script = d.script[1:]
	}
	if voice {
		d.lastVoice = now
		return vad.Result{IsVoice: true, RMS: 1}
	}
	return vad.Result{}
}

// SilentFor implements vad.Detector.
func (d *Detector) SilentFor(now time.Time) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastVoice.IsZero() {
		return 0
	}
	return now.Sub(d.lastVoice)
}

// State implements vad.Detector.
func (d *Detector) State() vad.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return vad.State{Threshold: d.threshold, LastVoice: d.lastVoice, Calibrated: d.calibrated}
}

// Reset records the call and forgets the last voice time.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ResetCallCount++
	d.lastVoice = time.Time{}
}

// Resets returns ResetCallCount under the lock.
func (d *Detector) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ResetCallCount
}

// Ticks returns TickCallCount under the lock.
func (d *Detector) Ticks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.TickCallCount
}

// Ensure Detector implements vad.Detector at compile time.
var _ vad.Detector = (*Detector)(nil)
