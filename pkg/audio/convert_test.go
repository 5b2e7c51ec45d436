package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/miniexplorer/pkg/audio"
)

func TestRMS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []float32
		want    float64
	}{
		{name: "empty", samples: nil, want: 0},
		{name: "silence", samples: []float32{0, 0, 0, 0}, want: 0},
		{name: "constant", samples: []float32{0.5, -0.5, 0.5, -0.5}, want: 0.5},
		{name: "full scale", samples: []float32{1, -1}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := audio.RMS(tt.samples)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RMS = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResample_SameRateIsIdentity(t *testing.T) {
	t.Parallel()

	in := []float32{0.1, -0.2, 0.3}
	out := audio.Resample(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: got %v, want %v", i, out[i], in[i])
		}
	}
}

func TestResample_Length(t *testing.T) {
	t.Parallel()

	rates := []int{8000, 11025, 16000, 22050, 24000, 44100, 48000}
	lengths := []int{1, 2, 3, 7, 160, 441, 1023, 4800}
	for _, src := range rates {
		for _, dst := range rates {
			for _, n := range lengths {
				in := make([]float32, n)
				out := audio.Resample(in, src, dst)
				want := int(math.Round(float64(n) * float64(dst) / float64(src)))
				if src == dst {
					want = n
				}
				if len(out) != want {
					t.Errorf("Resample(%d samples, %d→%d): got %d samples, want %d", n, src, dst, len(out), want)
				}
			}
		}
	}
}

func TestResample_Upsample(t *testing.T) {
	t.Parallel()

	// 2 samples at 16kHz → 6 samples at 48kHz (3x)
	out := audio.Resample([]float32{0, 0.3}, 16000, 48000)
	if len(out) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(out))
	}
	want := []float32{0, 0.1, 0.2, 0.3, 0.3, 0.3}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d: got %v, want %v", i, out[i], want[i])
		}
	}
}

func TestResample_Downsample(t *testing.T) {
	t.Parallel()

	// 6 samples at 48kHz → 2 samples at 16kHz (1/3x)
	out := audio.Resample([]float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}, 48000, 16000)
	if len(out) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(out))
	}
	if out[0] != 0.1 || out[1] != 0.4 {
		t.Errorf("got %v, want [0.1 0.4]", out)
	}
}

func TestQuantize16(t *testing.T) {
	t.Parallel()

	in := []float32{-2, -1, -0.5, 0, 0.5, 1, 2}
	want := []int16{-32768, -32768, -16384, 0, 16383, 32767, 32767}
	got := audio.Quantize16(in)
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d (%v): got %d, want %d", i, in[i], got[i], want[i])
		}
	}
}

func TestPCM16Bytes(t *testing.T) {
	t.Parallel()

	got := audio.PCM16Bytes([]int16{1, -1, 256})
	want := []byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x01}
	if string(got) != string(want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestFloat32FromLE(t *testing.T) {
	t.Parallel()

	// 1.0 and -0.5 in IEEE-754 little-endian plus a dangling byte.
	b := []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0xbf, 0x42}
	got := audio.Float32FromLE(b)
	if len(got) != 2 || got[0] != 1 || got[1] != -0.5 {
		t.Errorf("got %v, want [1 -0.5]", got)
	}
}

func TestFloat32FromPCM16(t *testing.T) {
	t.Parallel()

	b := audio.PCM16Bytes([]int16{0, 16384, -32768})
	got := audio.Float32FromPCM16(append(b, 0x7f))
	if len(got) != 3 || got[0] != 0 || got[1] != 0.5 || got[2] != -1 {
		t.Errorf("got %v, want [0 0.5 -1]", got)
	}
}

func TestConcat(t *testing.T) {
	t.Parallel()

	frames := []audio.AudioFrame{
		{Samples: []float32{1, 2}, SampleRate: 16000},
		{Samples: nil, SampleRate: 16000},
		{Samples: []float32{3}, SampleRate: 16000},
	}
	got := audio.Concat(frames)
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("got %v, want [1 2 3]", got)
	}
}

func TestAudioFrame_Duration(t *testing.T) {
	t.Parallel()

	f := audio.AudioFrame{Samples: make([]float32, 480), SampleRate: 48000}
	if got := f.Duration().Milliseconds(); got != 10 {
		t.Errorf("Duration = %dms, want 10ms", got)
	}
	if got := (audio.AudioFrame{Samples: make([]float32, 10)}).Duration(); got != 0 {
		t.Errorf("Duration without rate = %v, want 0", got)
	}
}
