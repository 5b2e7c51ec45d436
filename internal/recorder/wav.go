package recorder

import (
	"time"

	"github.com/MrWong99/miniexplorer/pkg/audio"
)

// wavEncoder accumulates raw frames and encodes them in one pass on finish.
type wavEncoder struct {
	captureRate int
	targetRate  int
	frames      []audio.AudioFrame
}

func newWAVEncoder(captureRate, targetRate int) *wavEncoder {
	return &wavEncoder{captureRate: captureRate, targetRate: targetRate}
}

func (e *wavEncoder) begin() error { return nil }

func (e *wavEncoder) write(frame audio.AudioFrame) error {
	e.frames = append(e.frames, frame)
	return nil
}

func (e *wavEncoder) finish() (Clip, error) {
	samples := audio.Resample(audio.Concat(e.frames), e.captureRate, e.targetRate)
	pcm := audio.Quantize16(samples)
	return Clip{
		Data:       audio.EncodeWAV(pcm, e.targetRate),
		MIMEType:   "audio/wav",
		SampleRate: e.targetRate,
		Duration:   time.Duration(len(pcm)) * time.Second / time.Duration(e.targetRate),
	}, nil
}

func (e *wavEncoder) reset() {
	e.frames = nil
}
