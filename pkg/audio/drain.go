package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this after releasing a [Signal] to drop frames still buffered in
// [Signal.Frames]. It blocks until the channel is closed.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
