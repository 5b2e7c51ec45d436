package recorder_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/miniexplorer/internal/recorder"
	"github.com/MrWong99/miniexplorer/pkg/audio"
)

func frame(rate, n int, v float32) audio.AudioFrame {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return audio.AudioFrame{Samples: s, SampleRate: rate}
}

func newWAV(t *testing.T, rate int, opts ...recorder.Option) *recorder.Recorder {
	t.Helper()
	r, err := recorder.New(rate, append([]recorder.Option{recorder.WithOpus(false)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.Strategy() != recorder.StrategyWAV {
		t.Fatalf("Strategy = %q, want wav", r.Strategy())
	}
	return r
}

func TestNew_InvalidRate(t *testing.T) {
	t.Parallel()
	if _, err := recorder.New(0); err == nil {
		t.Fatal("expected error for zero capture rate")
	}
}

func TestNew_StrategyFollowsCodecSupport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rate int
		opts []recorder.Option
		want recorder.Strategy
	}{
		{"48k default", 48000, nil, recorder.StrategyOpus},
		{"16k default", 16000, nil, recorder.StrategyOpus},
		{"44.1k falls back", 44100, nil, recorder.StrategyWAV},
		{"opus disabled", 48000, []recorder.Option{recorder.WithOpus(false)}, recorder.StrategyWAV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := recorder.New(tt.rate, tt.opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if r.Strategy() != tt.want {
				t.Errorf("Strategy = %q, want %q", r.Strategy(), tt.want)
			}
		})
	}
}

func TestEndSegment_WAVClip(t *testing.T) {
	t.Parallel()

	r := newWAV(t, 48000)
	if err := r.BeginSegment(); err != nil {
		t.Fatalf("BeginSegment: %v", err)
	}
	// 100 ms at 48 kHz in 10 frames.
	for range 10 {
		r.OnData(frame(48000, 480, 0))
	}
	clip, ok, err := r.EndSegment()
	if err != nil || !ok {
		t.Fatalf("EndSegment = ok %v, err %v", ok, err)
	}
	if clip.MIMEType != "audio/wav" || clip.SampleRate != 16000 {
		t.Errorf("clip = %q @ %d, want audio/wav @ 16000", clip.MIMEType, clip.SampleRate)
	}
	if clip.Duration != 100*time.Millisecond {
		t.Errorf("Duration = %v, want 100ms", clip.Duration)
	}

	info, err := audio.ParseWAV(clip.Data)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	// 4800 samples at 48 kHz → 1600 at 16 kHz.
	if info.DataSize != 2*1600 {
		t.Errorf("DataSize = %d, want %d", info.DataSize, 2*1600)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Errorf("header = %+v", info)
	}
}

func TestEndSegment_Idempotent(t *testing.T) {
	t.Parallel()

	r := newWAV(t, 16000)
	_ = r.BeginSegment()
	r.OnData(frame(16000, 160, 0.25))
	first, ok, err := r.EndSegment()
	if err != nil || !ok {
		t.Fatalf("first EndSegment = ok %v, err %v", ok, err)
	}
	second, ok, err := r.EndSegment()
	if err != nil || !ok {
		t.Fatalf("second EndSegment = ok %v, err %v", ok, err)
	}
	if !bytes.Equal(first.Data, second.Data) || first.Duration != second.Duration {
		t.Error("second EndSegment returned a different clip")
	}
	if &first.Data[0] != &second.Data[0] {
		t.Error("second EndSegment re-encoded the segment")
	}
	last, ok := r.LastClip()
	if !ok || &last.Data[0] != &first.Data[0] {
		t.Error("LastClip does not return the produced clip")
	}
}

func TestEndSegment_NoFramesNoClip(t *testing.T) {
	t.Parallel()

	r := newWAV(t, 16000)
	if err := r.BeginSegment(); err != nil {
		t.Fatalf("BeginSegment: %v", err)
	}
	clip, ok, err := r.EndSegment()
	if err != nil {
		t.Fatalf("EndSegment err = %v, want nil", err)
	}
	if ok || clip.Data != nil {
		t.Errorf("EndSegment = %+v, %v; want no clip", clip, ok)
	}
	if _, ok := r.LastClip(); ok {
		t.Error("LastClip set by an empty segment")
	}
}

func TestEndSegment_WithoutSegment(t *testing.T) {
	t.Parallel()

	r := newWAV(t, 16000)
	if _, ok, err := r.EndSegment(); ok || err != nil {
		t.Errorf("EndSegment on idle recorder = ok %v, err %v", ok, err)
	}
}

func TestBeginSegment_RejectsSecondOpen(t *testing.T) {
	t.Parallel()

	r := newWAV(t, 16000)
	if err := r.BeginSegment(); err != nil {
		t.Fatalf("BeginSegment: %v", err)
	}
	if err := r.BeginSegment(); !errors.Is(err, recorder.ErrSegmentOpen) {
		t.Fatalf("second BeginSegment err = %v, want ErrSegmentOpen", err)
	}
}

func TestBeginSegment_ClearsCachedClip(t *testing.T) {
	t.Parallel()

	r := newWAV(t, 16000)
	_ = r.BeginSegment()
	r.OnData(frame(16000, 160, 0.1))
	if _, ok, _ := r.EndSegment(); !ok {
		t.Fatal("first segment produced no clip")
	}

	_ = r.BeginSegment()
	clip, ok, err := r.EndSegment()
	if err != nil || ok {
		t.Fatalf("empty second segment = %+v ok %v err %v, want no clip", clip, ok, err)
	}
	if _, ok, _ := r.EndSegment(); ok {
		t.Error("repeat EndSegment after empty segment returned the stale clip")
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	r := newWAV(t, 16000)
	_ = r.BeginSegment()
	r.OnData(frame(16000, 160, 0.1))
	r.Discard()
	if _, ok, _ := r.EndSegment(); ok {
		t.Error("EndSegment after Discard produced a clip")
	}
	if err := r.BeginSegment(); err != nil {
		t.Errorf("BeginSegment after Discard: %v", err)
	}
}

func TestFramesOutsideSegmentIgnored(t *testing.T) {
	t.Parallel()

	r := newWAV(t, 16000)
	r.OnData(frame(16000, 160, 0.1))
	_ = r.BeginSegment()
	if _, ok, _ := r.EndSegment(); ok {
		t.Error("frame written before BeginSegment leaked into the segment")
	}
}

func TestPreRoll(t *testing.T) {
	t.Parallel()

	r := newWAV(t, 16000, recorder.WithPreRoll(20*time.Millisecond))
	// Five 10 ms frames before onset; only the last 20 ms are kept.
	for range 5 {
		r.OnData(frame(16000, 160, 0.1))
	}
	_ = r.BeginSegment()
	r.OnData(frame(16000, 160, 0.1))
	clip, ok, err := r.EndSegment()
	if err != nil || !ok {
		t.Fatalf("EndSegment = ok %v, err %v", ok, err)
	}
	if clip.Duration != 30*time.Millisecond {
		t.Errorf("Duration = %v, want 30ms (20ms pre-roll + 10ms)", clip.Duration)
	}
}

func TestMaxSegment(t *testing.T) {
	t.Parallel()

	r := newWAV(t, 16000, recorder.WithMaxSegment(50*time.Millisecond))
	_ = r.BeginSegment()
	for range 4 {
		r.OnData(frame(16000, 160, 0.1))
	}
	if r.Full() {
		t.Fatal("Full before reaching the cap")
	}
	for range 4 {
		r.OnData(frame(16000, 160, 0.1))
	}
	if !r.Full() {
		t.Fatal("Full = false after exceeding the cap")
	}
	clip, _, _ := r.EndSegment()
	if clip.Duration != 50*time.Millisecond {
		t.Errorf("Duration = %v, want 50ms", clip.Duration)
	}
}

func TestOpusClip(t *testing.T) {
	t.Parallel()

	r, err := recorder.New(48000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.Strategy() != recorder.StrategyOpus {
		t.Fatalf("Strategy = %q, want opus", r.Strategy())
	}
	_ = r.BeginSegment()
	// 50 ms: two full 20 ms packets plus a padded tail.
	for range 5 {
		r.OnData(frame(48000, 480, 0.05))
	}
	clip, ok, err := r.EndSegment()
	if err != nil || !ok {
		t.Fatalf("EndSegment = ok %v, err %v", ok, err)
	}
	if !bytes.HasPrefix(clip.Data, []byte("OggS")) {
		t.Errorf("clip does not start with an Ogg page: % x", clip.Data[:min(8, len(clip.Data))])
	}
	if !bytes.Contains(clip.Data, []byte("OpusHead")) {
		t.Error("clip has no OpusHead header")
	}
	if clip.MIMEType != "audio/ogg; codecs=opus" {
		t.Errorf("MIMEType = %q", clip.MIMEType)
	}
	if clip.Duration != 60*time.Millisecond {
		t.Errorf("Duration = %v, want 60ms", clip.Duration)
	}
}
