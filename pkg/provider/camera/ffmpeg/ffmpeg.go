// Package ffmpeg implements [camera.Provider] by running ffmpeg once per
// captured frame.
//
// Start only validates the device and records the facing; no process is
// kept running between captures. Each CaptureFrame spawns
//
//	ffmpeg -f <format> -i <device> -frames:v 1 -f image2 -c:v mjpeg -q:v <q> pipe:1
//
// and returns its stdout. Devices are chosen per facing so that a machine
// with two cameras can map "environment" and "user" to different inputs.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/miniexplorer/pkg/provider/camera"
)

const (
	DefaultBinary       = "ffmpeg"
	DefaultInputFormat  = "v4l2"
	DefaultDevice       = "/dev/video0"
	DefaultQuality      = 5
	defaultCaptureLimit = 5 * time.Second
)

var _ camera.Provider = (*Camera)(nil)

// Option is a functional option for [New].
type Option func(*Camera)

// WithBinary overrides the ffmpeg executable.
func WithBinary(path string) Option {
	return func(c *Camera) {
		if path != "" {
			c.binary = path
		}
	}
}

// WithInputFormat sets the ffmpeg demuxer (-f), e.g. "v4l2", "avfoundation"
// or "dshow".
func WithInputFormat(format string) Option {
	return func(c *Camera) {
		if format != "" {
			c.format = format
		}
	}
}

// WithDevice maps a facing to an input device.
func WithDevice(facing camera.Facing, device string) Option {
	return func(c *Camera) {
		if device != "" {
			c.devices[facing] = device
		}
	}
}

// WithQuality sets the MJPEG quantiser (2 best … 31 worst).
func WithQuality(q int) Option {
	return func(c *Camera) {
		if q >= 2 && q <= 31 {
			c.quality = q
		}
	}
}

// WithCaptureTimeout bounds a single capture.
func WithCaptureTimeout(d time.Duration) Option {
	return func(c *Camera) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Camera captures frames through ffmpeg.
type Camera struct {
	binary  string
	format  string
	devices map[camera.Facing]string
	quality int
	timeout time.Duration

	mu     sync.Mutex
	device string // empty when stopped
	last   []byte
}

// New returns a Camera. The binary is resolved lazily on Start.
func New(opts ...Option) *Camera {
	c := &Camera{
		binary:  DefaultBinary,
		format:  DefaultInputFormat,
		devices: map[camera.Facing]string{},
		quality: DefaultQuality,
		timeout: defaultCaptureLimit,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start implements [camera.Provider].
func (c *Camera) Start(_ context.Context, facing camera.Facing) error {
	if _, err := exec.LookPath(c.binary); err != nil {
		return fmt.Errorf("ffmpeg: %w: %w", camera.ErrUnavailable, err)
	}
	device := c.devices[facing]
	if device == "" {
		device = c.devices[camera.FacingEnvironment]
	}
	if device == "" {
		device = DefaultDevice
	}
	if c.format == "v4l2" {
		if err := checkDevice(device); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.device = device
	c.last = nil
	return nil
}

func checkDevice(path string) error {
	f, err := os.Open(path)
	switch {
	case err == nil:
		return f.Close()
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("ffmpeg: open %s: %w", path, camera.ErrPermissionDenied)
	default:
		return fmt.Errorf("ffmpeg: open %s: %w: %w", path, camera.ErrUnavailable, err)
	}
}

// Args returns the ffmpeg arguments used to grab one frame from device.
func (c *Camera) Args(device string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", c.format,
		"-i", device,
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-q:v", strconv.Itoa(c.quality),
		"pipe:1",
	}
}

// CaptureFrame implements [camera.Provider].
func (c *Camera) CaptureFrame(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	device := c.device
	c.mu.Unlock()
	if device == "" {
		return nil, camera.ErrNotStarted
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, c.Args(device)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("ffmpeg: capture %s: %w: %s", device, err, msg)
		}
		return nil, fmt.Errorf("ffmpeg: capture %s: %w", device, err)
	}
	frame := stdout.Bytes()
	if len(frame) < 2 || frame[0] != 0xFF || frame[1] != 0xD8 {
		return nil, fmt.Errorf("ffmpeg: capture %s: output is not a JPEG", device)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == "" {
		return nil, camera.ErrNotStarted
	}
	c.last = frame
	return frame, nil
}

// LastFrame returns the most recently captured frame, or nil.
func (c *Camera) LastFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Stop implements [camera.Provider].
func (c *Camera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.device = ""
	c.last = nil
	return nil
}
