package audio

import "context"

// Player renders mono float samples on an output device.
//
// Play blocks until every sample has been rendered or ctx is cancelled, in
// which case playback stops immediately and ctx.Err() is returned.
// Implementations must be safe for concurrent use; overlapping calls are
// allowed to mix or serialise.
type Player interface {
	Play(ctx context.Context, samples []float32, sampleRate int) error
}
