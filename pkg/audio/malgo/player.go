package malgo

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/miniexplorer/pkg/audio"
)

// Player renders audio on the host's default playback device. Each Play call
// opens its own device for the duration of the clip.
type Player struct{}

var _ audio.Player = (*Player)(nil)

// NewPlayer returns a Player.
func NewPlayer() *Player { return &Player{} }

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("malgo: init context: %w: %w", audio.ErrNoDevice, err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	src := &playbackSource{samples: samples, done: make(chan struct{})}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = 1
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: src.onData,
	})
	if err != nil {
		return fmt.Errorf("malgo: init playback device: %w: %w", audio.ErrNoDevice, err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("malgo: start playback device: %w", err)
	}

	select {
	case <-src.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// playbackSource feeds samples to the playback callback and closes done once
// they are exhausted.
type playbackSource struct {
	mu      sync.Mutex
	samples []float32
	pos     int
	done    chan struct{}
	closed  bool
}

func (s *playbackSource) onData(output, _ []byte, frameCount uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int(frameCount)
	for i := range n {
		var v float32
		if s.pos < len(s.samples) {
			v = s.samples[s.pos]
			s.pos++
		}
		binary.LittleEndian.PutUint32(output[i*4:], math.Float32bits(v))
	}
	if s.pos >= len(s.samples) && !s.closed {
		s.closed = true
		close(s.done)
	}
}
