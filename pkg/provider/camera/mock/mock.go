// Package mock provides a test double for [camera.Provider].
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/miniexplorer/pkg/provider/camera"
)

// Provider is a mock implementation of [camera.Provider].
type Provider struct {
	mu sync.Mutex

	// StartErr is returned by Start when non-nil.
	StartErr error

	// Frame is returned by CaptureFrame. Defaults to a two-byte JPEG SOI
	// marker.
	Frame []byte

	// CaptureErr is returned by CaptureFrame when non-nil.
	CaptureErr error

	started  bool
	facings  []camera.Facing
	captures int
	stops    int
}

var _ camera.Provider = (*Provider)(nil)

// Start implements [camera.Provider].
func (p *Provider) Start(_ context.Context, facing camera.Facing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.facings = append(p.facings, facing)
	if p.StartErr != nil {
		return p.StartErr
	}
	p.started = true
	return nil
}

// CaptureFrame implements [camera.Provider].
func (p *Provider) CaptureFrame(_ context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captures++
	if p.CaptureErr != nil {
		return nil, p.CaptureErr
	}
	if !p.started {
		return nil, camera.ErrNotStarted
	}
	if p.Frame == nil {
		return []byte{0xFF, 0xD8}, nil
	}
	return p.Frame, nil
}

// Stop implements [camera.Provider].
func (p *Provider) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	p.stops++
	return nil
}

// SetCaptureErr changes the error returned by subsequent captures.
func (p *Provider) SetCaptureErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CaptureErr = err
}

// Facings returns the facing passed to each Start call.
func (p *Provider) Facings() []camera.Facing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]camera.Facing(nil), p.facings...)
}

// Captures returns the number of CaptureFrame calls.
func (p *Provider) Captures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.captures
}

// Stops returns the number of Stop calls.
func (p *Provider) Stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

// Started reports whether the camera is currently started.
func (p *Provider) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}
