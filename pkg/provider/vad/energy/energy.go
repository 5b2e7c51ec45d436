// Package energy implements [vad.Engine] with an RMS-energy detector whose
// threshold adapts to the room: during calibration the ambient level is
// averaged, multiplied and clamped, and from then on any poll louder than
// the threshold counts as voice.
package energy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/miniexplorer/pkg/audio"
	"github.com/MrWong99/miniexplorer/pkg/provider/vad"
)

// Engine creates energy [Detector] values.
type Engine struct{}

var _ vad.Engine = Engine{}

// NewDetector implements [vad.Engine].
func (Engine) NewDetector(cfg vad.Config) (vad.Detector, error) {
	return New(cfg)
}

// Detector is an RMS threshold detector.
type Detector struct {
	cfg vad.Config

	mu    sync.Mutex
	state vad.State
}

var _ vad.Detector = (*Detector)(nil)

// New returns an uncalibrated detector. cfg is completed with defaults.
func New(cfg vad.Config) (*Detector, error) {
	cfg = cfg.WithDefaults()
	if cfg.MinThreshold > cfg.MaxThreshold {
		return nil, fmt.Errorf("energy: min threshold %.4f exceeds max threshold %.4f", cfg.MinThreshold, cfg.MaxThreshold)
	}
	if cfg.CalibrationCadence > cfg.CalibrationWindow {
		return nil, fmt.Errorf("energy: calibration cadence %s exceeds window %s", cfg.CalibrationCadence, cfg.CalibrationWindow)
	}
	return &Detector{
		cfg:   cfg,
		state: vad.State{Threshold: vad.DefaultThreshold},
	}, nil
}

// Threshold derives the voice threshold from an averaged noise floor:
// clamp(avg*multiplier, min, max).
func Threshold(avg, multiplier, minT, maxT float64) float64 {
	t := avg * multiplier
	if t < minT {
		return minT
	}
	if t > maxT {
		return maxT
	}
	return t
}

// Calibrate implements [vad.Detector]. The source is sampled every cadence
// tick until the window elapses.
func (d *Detector) Calibrate(ctx context.Context, src vad.Level) (float64, error) {
	if src == nil {
		return 0, vad.ErrNoSignal
	}
	d.mu.Lock()
	calibrated := d.state.Calibrated
	d.mu.Unlock()
	if calibrated {
		return 0, vad.ErrAlreadyCalibrated
	}

	if d.cfg.FixedThreshold > 0 {
		return d.fix(Threshold(d.cfg.FixedThreshold, 1, d.cfg.MinThreshold, d.cfg.MaxThreshold)), nil
	}

	ticker := time.NewTicker(d.cfg.CalibrationCadence)
	defer ticker.Stop()
	window := time.NewTimer(d.cfg.CalibrationWindow)
	defer window.Stop()

	var (
		sum float64
		n   int
	)
sampling:
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-window.C:
			break sampling
		case <-ticker.C:
			sum += src.Level()
			n++
		}
	}

	avg := vad.DefaultNoiseFloor
	if n > 0 {
		avg = sum / float64(n)
	}
	return d.fix(Threshold(avg, d.cfg.Multiplier, d.cfg.MinThreshold, d.cfg.MaxThreshold)), nil
}

func (d *Detector) fix(threshold float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.Threshold = threshold
	d.state.Calibrated = true
	return threshold
}

// Classify implements [vad.Detector].
func (d *Detector) Classify(samples []float32) vad.Result {
	return d.classifyLevel(audio.RMS(samples))
}

func (d *Detector) classifyLevel(rms float64) vad.Result {
	d.mu.Lock()
	threshold := d.state.Threshold
	d.mu.Unlock()
	return vad.Result{IsVoice: rms > threshold, RMS: rms}
}

// Tick implements [vad.Detector].
func (d *Detector) Tick(now time.Time, src vad.Level) vad.Result {
	if src == nil {
		return vad.Result{}
	}
	res := d.classifyLevel(src.Level())
	if res.IsVoice {
		d.mu.Lock()
		d.state.LastVoice = now
		d.mu.Unlock()
	}
	return res
}

// SilentFor implements [vad.Detector].
func (d *Detector) SilentFor(now time.Time) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state.LastVoice.IsZero() {
		return 0
	}
	return now.Sub(d.state.LastVoice)
}

// State implements [vad.Detector].
func (d *Detector) State() vad.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Reset implements [vad.Detector].
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state.LastVoice = time.Time{}
}
