package ffmpeg_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/miniexplorer/pkg/provider/camera"
	"github.com/MrWong99/miniexplorer/pkg/provider/camera/ffmpeg"
)

func TestArgs(t *testing.T) {
	t.Parallel()

	c := ffmpeg.New(ffmpeg.WithInputFormat("avfoundation"), ffmpeg.WithQuality(3))
	got := c.Args("0")
	want := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "avfoundation", "-i", "0",
		"-frames:v", "1", "-f", "image2", "-c:v", "mjpeg", "-q:v", "3",
		"pipe:1",
	}
	if !slices.Equal(got, want) {
		t.Errorf("Args =\n%v\nwant\n%v", got, want)
	}
}

func TestWithQuality_IgnoresOutOfRange(t *testing.T) {
	t.Parallel()

	c := ffmpeg.New(ffmpeg.WithQuality(99))
	args := c.Args("x")
	if q := args[len(args)-2]; q != "5" {
		t.Errorf("quality = %s, want default 5", q)
	}
}

func TestCaptureFrame_NotStarted(t *testing.T) {
	t.Parallel()

	c := ffmpeg.New()
	if _, err := c.CaptureFrame(context.Background()); !errors.Is(err, camera.ErrNotStarted) {
		t.Fatalf("err = %v, want ErrNotStarted", err)
	}
}

func TestStart_MissingBinary(t *testing.T) {
	t.Parallel()

	c := ffmpeg.New(ffmpeg.WithBinary("definitely-not-an-ffmpeg-binary"))
	err := c.Start(context.Background(), camera.FacingUser)
	if !errors.Is(err, camera.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestParseFacing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    camera.Facing
		wantErr bool
	}{
		{"", camera.FacingEnvironment, false},
		{"environment", camera.FacingEnvironment, false},
		{"user", camera.FacingUser, false},
		{"left", "", true},
	}
	for _, tt := range tests {
		got, err := camera.ParseFacing(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFacing(%q) = %q, %v", tt.in, got, err)
		}
	}
}
