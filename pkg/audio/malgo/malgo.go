// Package malgo implements [audio.Microphone] on top of miniaudio via
// github.com/gen2brain/malgo.
//
// The device is opened in mono float32 mode at the configured sample rate.
// The capture callback runs on a miniaudio thread; it slices the incoming
// buffer into fixed-size [audio.AudioFrame] values and hands them to the
// signal's channel without blocking. Frames are dropped when the consumer
// falls behind.
package malgo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/miniexplorer/pkg/audio"
)

const (
	defaultSampleRate = 48000
	defaultFrameSize  = 960
	defaultBuffer     = 64
)

// Option is a functional option for configuring a [Microphone].
type Option func(*Microphone)

// WithSampleRate sets the capture rate in Hz. Defaults to 48000.
func WithSampleRate(hz int) Option {
	return func(m *Microphone) {
		if hz > 0 {
			m.sampleRate = hz
		}
	}
}

// WithFrameSize sets the number of samples per emitted frame. Defaults to 960
// (20 ms at 48 kHz).
func WithFrameSize(n int) Option {
	return func(m *Microphone) {
		if n > 0 {
			m.frameSize = n
		}
	}
}

// WithBuffer sets how many frames may queue before capture starts dropping.
func WithBuffer(n int) Option {
	return func(m *Microphone) {
		if n > 0 {
			m.buffer = n
		}
	}
}

// Microphone opens the host's default capture device.
type Microphone struct {
	sampleRate int
	frameSize  int
	buffer     int
}

var _ audio.Microphone = (*Microphone)(nil)

// New returns a Microphone with the given options applied.
func New(opts ...Option) *Microphone {
	m := &Microphone{
		sampleRate: defaultSampleRate,
		frameSize:  defaultFrameSize,
		buffer:     defaultBuffer,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Acquire implements [audio.Microphone]. It initialises a miniaudio context,
// opens the default capture device and starts streaming.
func (m *Microphone) Acquire(ctx context.Context) (audio.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w: %w", audio.ErrNoDevice, err)
	}

	sig := &signal{
		rate:      m.sampleRate,
		frameSize: m.frameSize,
		ch:        make(chan audio.AudioFrame, m.buffer),
		mctx:      mctx,
		started:   time.Now(),
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(m.sampleRate)
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: sig.onData,
		Stop: sig.onStop,
	})
	if err != nil {
		sig.freeContext()
		return nil, fmt.Errorf("malgo: init device: %w: %w", audio.ErrNoDevice, err)
	}
	sig.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		sig.freeContext()
		return nil, fmt.Errorf("malgo: start device: %w: %w", audio.ErrPermissionDenied, err)
	}

	slog.Debug("malgo: capture started", "sample_rate", m.sampleRate, "frame_size", m.frameSize)
	return sig, nil
}

// Release implements [audio.Microphone].
func (m *Microphone) Release(s audio.Signal) error {
	sig, ok := s.(*signal)
	if !ok {
		return fmt.Errorf("malgo: release: foreign signal %T", s)
	}
	sig.close()
	return nil
}

// signal is the [audio.Signal] returned by [Microphone.Acquire].
type signal struct {
	rate      int
	frameSize int
	ch        chan audio.AudioFrame
	mctx      *malgo.AllocatedContext
	device    *malgo.Device
	started   time.Time

	mu      sync.Mutex
	pending []float32
	closed  bool
	dropped int
}

func (s *signal) Frames() <-chan audio.AudioFrame { return s.ch }

func (s *signal) SampleRate() int { return s.rate }

// onData runs on the miniaudio capture thread.
func (s *signal) onData(_, input []byte, frameCount uint32) {
	if frameCount == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = append(s.pending, audio.Float32FromLE(input[:int(frameCount)*4])...)
	for len(s.pending) >= s.frameSize {
		chunk := make([]float32, s.frameSize)
		copy(chunk, s.pending[:s.frameSize])
		s.pending = append(s.pending[:0], s.pending[s.frameSize:]...)
		select {
		case s.ch <- audio.AudioFrame{Samples: chunk, SampleRate: s.rate, Timestamp: time.Since(s.started)}:
		default:
			s.dropped++
		}
	}
}

// onStop fires when miniaudio stops the device, including on unplug.
func (s *signal) onStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeChannelLocked()
}

func (s *signal) closeChannelLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	if s.dropped > 0 {
		slog.Debug("malgo: capture dropped frames", "count", s.dropped)
	}
}

func (s *signal) close() {
	// Uninit blocks until the capture thread has stopped, so it must run
	// without holding mu.
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	s.mu.Lock()
	s.closeChannelLocked()
	s.mu.Unlock()
	s.freeContext()
}

func (s *signal) freeContext() {
	if s.mctx == nil {
		return
	}
	if err := s.mctx.Uninit(); err != nil {
		slog.Warn("malgo: uninit context", "err", err)
	}
	s.mctx.Free()
	s.mctx = nil
}
