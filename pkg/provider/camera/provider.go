// Package camera defines the Provider interface for still-frame capture.
//
// The engine starts a camera once per mode session, grabs one JPEG frame at
// every speech onset, and stops the camera on teardown. Camera access is
// optional: callers treat every error from this package as "no image this
// turn".
package camera

import (
	"context"
	"errors"
	"fmt"
)

// Facing selects which physical camera to open.
type Facing string

const (
	// FacingEnvironment is the rear camera, pointed at the scene.
	FacingEnvironment Facing = "environment"

	// FacingUser is the front camera, pointed at the speaker.
	FacingUser Facing = "user"
)

// ParseFacing validates a facing name. An empty string yields
// [FacingEnvironment].
func ParseFacing(s string) (Facing, error) {
	switch Facing(s) {
	case "", FacingEnvironment:
		return FacingEnvironment, nil
	case FacingUser:
		return FacingUser, nil
	default:
		return "", fmt.Errorf("camera: unknown facing %q (want %q or %q)", s, FacingEnvironment, FacingUser)
	}
}

var (
	// ErrPermissionDenied is returned when the device exists but may not be
	// opened.
	ErrPermissionDenied = errors.New("camera: permission denied")

	// ErrNotStarted is returned by CaptureFrame before Start or after Stop.
	ErrNotStarted = errors.New("camera: not started")

	// ErrUnavailable is returned when no capture backend or device exists.
	ErrUnavailable = errors.New("camera: unavailable")
)

// Provider captures still frames.
//
// Implementations must be safe for concurrent use; CaptureFrame may be
// called while Stop runs, in which case it fails with [ErrNotStarted].
type Provider interface {
	// Start opens the camera with the given facing. Calling Start on a started
	// provider restarts it.
	Start(ctx context.Context, facing Facing) error

	// CaptureFrame returns one JPEG-encoded frame.
	CaptureFrame(ctx context.Context) ([]byte, error)

	// Stop releases the camera. It is safe to call more than once.
	Stop() error
}
