package audio

import "sync"

// DefaultAnalyserSize is the number of most recent samples an [Analyser]
// keeps when created with a non-positive size.
const DefaultAnalyserSize = 2048

// Analyser keeps a rolling window of the most recent microphone samples so
// that a periodic poller can measure the current signal energy without
// consuming the stream itself. It is written by the frame pump and read by
// the VAD ticker; all methods are safe for concurrent use.
type Analyser struct {
	mu     sync.Mutex
	buf    []float32
	head   int
	filled bool
	closed bool
}

// NewAnalyser returns an analyser holding the last size samples.
func NewAnalyser(size int) *Analyser {
	if size <= 0 {
		size = DefaultAnalyserSize
	}
	return &Analyser{buf: make([]float32, size)}
}

// Write appends samples to the window, overwriting the oldest ones. Writes
// after [Analyser.Close] are ignored.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	// Only the tail can survive when the write exceeds the window.
	if len(samples) >= len(a.buf) {
		copy(a.buf, samples[len(samples)-len(a.buf):])
		a.head = 0
		a.filled = true
		return
	}
	for _, s := range samples {
		a.buf[a.head] = s
		a.head++
		if a.head == len(a.buf) {
			a.head = 0
			a.filled = true
		}
	}
}

// Window returns a copy of the retained samples in capture order. Before the
// window has filled, only the samples written so far are returned.
func (a *Analyser) Window() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.filled {
		out := make([]float32, a.head)
		copy(out, a.buf[:a.head])
		return out
	}
	out := make([]float32, len(a.buf))
	n := copy(out, a.buf[a.head:])
	copy(out[n:], a.buf[:a.head])
	return out
}

// Level returns the RMS energy of the current window.
func (a *Analyser) Level() float64 {
	return RMS(a.Window())
}

// Close stops accepting writes and clears the window.
func (a *Analyser) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	clear(a.buf)
	a.head = 0
	a.filled = false
}
