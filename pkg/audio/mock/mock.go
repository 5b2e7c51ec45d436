// Package mock provides in-memory mock implementations of the
// [audio.Microphone], [audio.Signal] and [audio.Player] interfaces for use in
// unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts, and they expose exported fields that the
// test can set to control return values.
//
// Typical usage:
//
//	sig := mock.NewSignal(48000, 16)
//	mic := &mock.Microphone{AcquireResult: sig}
//	sig.Push(make([]float32, 480))
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/miniexplorer/pkg/audio"
)

// ─── Signal ───────────────────────────────────────────────────────────────────

// Signal is a mock implementation of [audio.Signal] backed by a buffered
// channel. Frames are injected with [Signal.Push].
type Signal struct {
	mu      sync.Mutex
	rate    int
	ch      chan audio.AudioFrame
	closed  bool
	elapsed time.Duration
}

var _ audio.Signal = (*Signal)(nil)

// NewSignal returns a signal at sampleRate whose frame channel holds up to
// buffer frames.
func NewSignal(sampleRate, buffer int) *Signal {
	return &Signal{rate: sampleRate, ch: make(chan audio.AudioFrame, buffer)}
}

// Frames implements [audio.Signal].
func (s *Signal) Frames() <-chan audio.AudioFrame { return s.ch }

// SampleRate implements [audio.Signal].
func (s *Signal) SampleRate() int { return s.rate }

// Push enqueues one frame of samples stamped with the running stream time.
// It reports false when the signal is closed or the buffer is full.
func (s *Signal) Push(samples []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	f := audio.AudioFrame{Samples: samples, SampleRate: s.rate, Timestamp: s.elapsed}
	select {
	case s.ch <- f:
		s.elapsed += f.Duration()
		return true
	default:
		return false
	}
}

// Close closes the frame channel. It is safe to call more than once.
func (s *Signal) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Closed reports whether [Signal.Close] has been called.
func (s *Signal) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock implementation of [audio.Microphone].
// Set the exported Result fields before use; inspect the Call* fields after.
type Microphone struct {
	mu sync.Mutex

	// AcquireResult is returned by [Microphone.Acquire] when AcquireErr is nil.
	AcquireResult *Signal

	// AcquireErr is returned by [Microphone.Acquire].
	AcquireErr error

	// ReleaseErr is returned by [Microphone.Release].
	ReleaseErr error

	// OnRelease, if set, runs at the start of every Release call.
	OnRelease func(audio.Signal)

	// CallCountAcquire records how many times Acquire was called.
	CallCountAcquire int

	// CallCountRelease records how many times Release was called.
	CallCountRelease int
}

var _ audio.Microphone = (*Microphone)(nil)

// Acquire implements [audio.Microphone].
func (m *Microphone) Acquire(ctx context.Context) (audio.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountAcquire++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.AcquireErr != nil {
		return nil, m.AcquireErr
	}
	if m.AcquireResult == nil {
		return nil, audio.ErrNoDevice
	}
	return m.AcquireResult, nil
}

// Release implements [audio.Microphone]. It closes the signal when it is a
// [*Signal].
func (m *Microphone) Release(sig audio.Signal) error {
	m.mu.Lock()
	m.CallCountRelease++
	err, hook := m.ReleaseErr, m.OnRelease
	m.mu.Unlock()
	if hook != nil {
		hook(sig)
	}
	if s, ok := sig.(*Signal); ok {
		s.Close()
	}
	return err
}

// Releases returns CallCountRelease under the lock.
func (m *Microphone) Releases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCountRelease
}

// ─── Player ───────────────────────────────────────────────────────────────────

// PlayCall records a single invocation of [Player.Play].
type PlayCall struct {
	Samples    []float32
	SampleRate int
}

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by Play when non-nil.
	PlayErr error

	// Hold makes Play block until its context is cancelled.
	Hold bool

	calls     []PlayCall
	cancelled int
}

var _ audio.Player = (*Player)(nil)

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate int) error {
	p.mu.Lock()
	p.calls = append(p.calls, PlayCall{Samples: samples, SampleRate: sampleRate})
	hold, err := p.Hold, p.PlayErr
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if !hold {
		return nil
	}
	<-ctx.Done()
	p.mu.Lock()
	p.cancelled++
	p.mu.Unlock()
	return ctx.Err()
}

// Calls returns a copy of every Play call.
func (p *Player) Calls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PlayCall(nil), p.calls...)
}

// Cancelled returns how many held Play calls ended by cancellation.
func (p *Player) Cancelled() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}
