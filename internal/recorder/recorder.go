// Package recorder turns the microphone frames captured between a speech
// onset and a speech end into a single transmittable [Clip].
//
// Two encoding strategies exist and exactly one is chosen when a [Recorder]
// is constructed:
//
//   - StrategyOpus streams every 20 ms of audio through an Opus encoder and
//     packs the packets into an Ogg container as they arrive.
//   - StrategyWAV accumulates raw frames and, when the segment ends,
//     resamples them to the target rate and wraps 16-bit PCM in a canonical
//     WAV header.
//
// The Opus path is selected whenever the codec can be initialised at the
// capture rate; otherwise the recorder falls back to WAV. [WithOpus](false)
// forces WAV.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/miniexplorer/pkg/audio"
)

// DefaultTargetRate is the sample rate of WAV clips.
const DefaultTargetRate = 16000

var (
	// ErrSegmentOpen is returned by [Recorder.BeginSegment] while a segment
	// is already being recorded.
	ErrSegmentOpen = errors.New("recorder: segment already open")

	// ErrEncodingFailed wraps codec failures while finalising a segment.
	ErrEncodingFailed = errors.New("recorder: encoding failed")
)

// Strategy names the encoding path a [Recorder] uses.
type Strategy string

const (
	StrategyWAV  Strategy = "wav"
	StrategyOpus Strategy = "opus"
)

// Clip is the encoded artefact of one closed segment. It is immutable once
// produced.
type Clip struct {
	// Data is the self-describing encoded byte stream.
	Data []byte

	// MIMEType describes Data, e.g. "audio/wav" or "audio/ogg; codecs=opus".
	MIMEType string

	// SampleRate of the encoded audio in Hz.
	SampleRate int

	// Duration is the playback length of the clip.
	Duration time.Duration
}

// encoder is one encoding strategy. Calls are serialised by [Recorder].
type encoder interface {
	begin() error
	write(frame audio.AudioFrame) error
	finish() (Clip, error)
	reset()
}

// Option is a functional option for [New].
type Option func(*Recorder)

// WithTargetRate sets the WAV output sample rate. Defaults to 16000.
func WithTargetRate(hz int) Option {
	return func(r *Recorder) {
		if hz > 0 {
			r.targetRate = hz
		}
	}
}

// WithOpus enables or disables the Opus strategy. Enabled by default; the
// recorder still falls back to WAV when the codec is unavailable at the
// capture rate.
func WithOpus(enabled bool) Option {
	return func(r *Recorder) { r.opus = enabled }
}

// WithPreRoll keeps the last d of audio heard before a segment begins and
// prepends it to the segment, so that the first syllable is not clipped by
// detection latency.
func WithPreRoll(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.preRoll = d
		}
	}
}

// WithMaxSegment caps the length of one segment. [Recorder.Full] reports true
// once the cap is reached. Zero means unlimited.
func WithMaxSegment(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.maxSegment = d
		}
	}
}

// Recorder owns at most one open segment at a time. All methods are safe for
// concurrent use: the frame pump calls OnData while the conversation loop
// opens and closes segments.
type Recorder struct {
	captureRate int
	targetRate  int
	opus        bool
	preRoll     time.Duration
	maxSegment  time.Duration
	strategy    Strategy

	mu       sync.Mutex
	enc      encoder
	open     bool
	frames   int
	recorded time.Duration
	ring     []audio.AudioFrame
	ringDur  time.Duration
	last     *Clip
	// ended is the clip of the most recently closed segment, nil when that
	// segment produced none. Cleared by BeginSegment.
	ended *Clip
}

// New returns a recorder for audio captured at captureRate. The encoding
// strategy is resolved here, once.
func New(captureRate int, opts ...Option) (*Recorder, error) {
	if captureRate <= 0 {
		return nil, fmt.Errorf("recorder: invalid capture rate %d", captureRate)
	}
	r := &Recorder{
		captureRate: captureRate,
		targetRate:  DefaultTargetRate,
		opus:        true,
	}
	for _, o := range opts {
		o(r)
	}

	if r.opus {
		enc, err := newOpusEncoder(captureRate)
		if err == nil {
			r.enc = enc
			r.strategy = StrategyOpus
		} else {
			slog.Info("recorder: opus unavailable, falling back to wav", "capture_rate", captureRate, "err", err)
		}
	}
	if r.enc == nil {
		r.enc = newWAVEncoder(captureRate, r.targetRate)
		r.strategy = StrategyWAV
	}
	return r, nil
}

// Strategy reports the encoding path chosen at construction.
func (r *Recorder) Strategy() Strategy { return r.strategy }

// BeginSegment opens a new segment. Any buffered pre-roll becomes the start
// of the segment.
func (r *Recorder) BeginSegment() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open {
		return ErrSegmentOpen
	}
	r.enc.reset()
	if err := r.enc.begin(); err != nil {
		return fmt.Errorf("%w: %w", ErrEncodingFailed, err)
	}
	r.open = true
	r.ended = nil
	r.frames = 0
	r.recorded = 0

	for _, f := range r.ring {
		r.writeLocked(f)
	}
	r.ring = nil
	r.ringDur = 0
	return nil
}

// OnData feeds one captured frame. While no segment is open the frame only
// refreshes the pre-roll buffer.
func (r *Recorder) OnData(frame audio.AudioFrame) {
	if len(frame.Samples) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		r.bufferLocked(frame)
		return
	}
	r.writeLocked(frame)
}

func (r *Recorder) writeLocked(frame audio.AudioFrame) {
	if r.maxSegment > 0 && r.recorded >= r.maxSegment {
		return
	}
	if err := r.enc.write(frame); err != nil {
		slog.Warn("recorder: dropping frame", "strategy", r.strategy, "err", err)
		return
	}
	r.frames++
	r.recorded += frame.Duration()
}

func (r *Recorder) bufferLocked(frame audio.AudioFrame) {
	if r.preRoll <= 0 {
		return
	}
	r.ring = append(r.ring, frame)
	r.ringDur += frame.Duration()
	for len(r.ring) > 1 && r.ringDur-r.ring[0].Duration() >= r.preRoll {
		r.ringDur -= r.ring[0].Duration()
		r.ring = r.ring[1:]
	}
}

// Full reports whether the open segment reached the configured maximum
// length.
func (r *Recorder) Full() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open && r.maxSegment > 0 && r.recorded >= r.maxSegment
}

// EndSegment closes the open segment and returns its clip. When no frames
// were accumulated it returns ok == false and a nil error: nothing was
// recorded, which callers treat as a normal outcome. Calling EndSegment
// again before the next BeginSegment returns the same clip without
// re-encoding.
func (r *Recorder) EndSegment() (clip Clip, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		if r.ended != nil {
			return *r.ended, true, nil
		}
		return Clip{}, false, nil
	}
	r.open = false

	if r.frames == 0 {
		r.enc.reset()
		return Clip{}, false, nil
	}
	c, err := r.enc.finish()
	r.enc.reset()
	if err != nil {
		return Clip{}, false, fmt.Errorf("%w: %w", ErrEncodingFailed, err)
	}
	r.last = &c
	r.ended = &c
	return c, true, nil
}

// Discard drops the open segment, if any, without encoding it.
func (r *Recorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	r.ended = nil
	r.frames = 0
	r.recorded = 0
	r.ring = nil
	r.ringDur = 0
	r.enc.reset()
}

// LastClip returns the most recently produced clip.
func (r *Recorder) LastClip() (Clip, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Clip{}, false
	}
	return *r.last, true
}
