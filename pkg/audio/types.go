package audio

import "time"

// AudioFrame represents a single buffer of microphone signal flowing through
// the conversation loop. Frames are produced continuously by a [Signal],
// classified by the VAD, accumulated by the segment recorder and then
// discarded.
type AudioFrame struct {
	// Samples holds mono PCM in the range [-1, 1].
	Samples []float32

	// SampleRate in Hz of the capture device (e.g., 48000, 44100, 16000).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame. A frame without a
// sample rate has zero duration.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}
