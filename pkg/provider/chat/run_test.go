package chat_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/miniexplorer/pkg/provider/chat"
	"github.com/MrWong99/miniexplorer/pkg/provider/chat/mock"
)

func TestRunTurn_Order(t *testing.T) {
	t.Parallel()

	c := &mock.Client{Reply: "你好", HasReply: true}
	res, err := chat.RunTurn(context.Background(), c, chat.Turn{
		Audio:  &chat.Media{Data: []byte("a"), MIMEType: "audio/ogg; codecs=opus"},
		Image:  &chat.Media{Data: []byte("i")},
		Prompt: "p",
		BotID:  "bot_x",
	}, nil)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	want := []string{"upload", "upload", "create", "await", "fetch"}
	if got := c.Calls(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if res.Reply != "你好" || !res.HasReply {
		t.Errorf("reply = %q/%v", res.Reply, res.HasReply)
	}

	req := c.Creates()[0]
	if req.BotID != "bot_x" || req.Prompt != "p" || req.AudioFileType != "ogg_opus" {
		t.Errorf("create request = %+v", req)
	}
	if req.AudioFileID == "" || req.ImageFileID == "" {
		t.Errorf("file ids missing in %+v", req)
	}

	kinds := map[chat.MediaKind]int{}
	for _, m := range c.Uploads() {
		kinds[m.Kind]++
	}
	if kinds[chat.MediaAudio] != 1 || kinds[chat.MediaImage] != 1 {
		t.Errorf("upload kinds = %v", kinds)
	}
}

func TestRunTurn_AudioOnly(t *testing.T) {
	t.Parallel()

	c := &mock.Client{}
	res, err := chat.RunTurn(context.Background(), c, chat.Turn{
		Audio: &chat.Media{Data: []byte("a"), MIMEType: "audio/wav"},
	}, nil)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if res.ImageFileID != "" {
		t.Errorf("ImageFileID = %q, want empty", res.ImageFileID)
	}
	if res.HasReply {
		t.Error("HasReply = true for an empty reply")
	}
	if n := len(c.Uploads()); n != 1 {
		t.Errorf("uploads = %d, want 1", n)
	}
}

func TestRunTurn_StopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	imageOnly := chat.MediaImage
	tests := []struct {
		name      string
		client    *mock.Client
		wantCalls []string
		wantErr   error
	}{
		{
			name:      "upload",
			client:    &mock.Client{UploadErr: &chat.Error{Kind: chat.KindHTTPStatus, Op: "upload", Status: 500}, UploadErrKind: &imageOnly},
			wantCalls: []string{"upload", "upload"},
			wantErr:   chat.ErrHTTPStatus,
		},
		{
			name:      "create",
			client:    &mock.Client{CreateErr: &chat.Error{Kind: chat.KindApplication, Op: "create", Code: 4000}},
			wantCalls: []string{"upload", "upload", "create"},
			wantErr:   chat.ErrApplication,
		},
		{
			name: "await",
			client: &mock.Client{
				Outcome:  chat.Outcome{Status: chat.StatusFailed, Attempts: 5},
				AwaitErr: &chat.Error{Kind: chat.KindFailed, Op: "retrieve"},
			},
			wantCalls: []string{"upload", "upload", "create", "await"},
			wantErr:   chat.ErrFailed,
		},
		{
			name:      "fetch",
			client:    &mock.Client{FetchErr: &chat.Error{Kind: chat.KindTransport, Op: "message_list"}},
			wantCalls: []string{"upload", "upload", "create", "await", "fetch"},
			wantErr:   chat.ErrTransport,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var failed []chat.Stage
			_, err := chat.RunTurn(context.Background(), tt.client, chat.Turn{
				Audio: &chat.Media{Data: []byte("a")},
				Image: &chat.Media{Data: []byte("i")},
			}, func(s chat.Stage, _ time.Duration, err error) {
				if err != nil {
					failed = append(failed, s)
				}
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got := tt.client.Calls(); !slices.Equal(got, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", got, tt.wantCalls)
			}
			if len(failed) != 1 {
				t.Errorf("failed stages = %v, want exactly one", failed)
			}
		})
	}
}

func TestMedia_UploadName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		media chat.Media
		name  string
		ctype string
	}{
		{chat.Media{Kind: chat.MediaImage}, "frame.jpg", "image/jpeg"},
		{chat.Media{Kind: chat.MediaAudio, MIMEType: "audio/wav"}, "audio.wav", "audio/wav"},
		{chat.Media{Kind: chat.MediaAudio, MIMEType: "audio/ogg; codecs=opus"}, "audio.ogg", "audio/ogg; codecs=opus"},
		{chat.Media{Kind: chat.MediaAudio, MIMEType: "audio/mp4"}, "audio.m4a", "audio/mp4"},
		{chat.Media{Kind: chat.MediaAudio}, "audio.dat", "application/octet-stream"},
		{chat.Media{Kind: chat.MediaAudio, Filename: "x.wav"}, "x.wav", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := tt.media.UploadName(); got != tt.name {
			t.Errorf("UploadName(%+v) = %q, want %q", tt.media, got, tt.name)
		}
		if got := tt.media.ContentType(); got != tt.ctype {
			t.Errorf("ContentType(%+v) = %q, want %q", tt.media, got, tt.ctype)
		}
	}
}

func TestError_Is(t *testing.T) {
	t.Parallel()

	cause := errors.New("reset")
	err := error(&chat.Error{Kind: chat.KindTransport, Op: "upload", Err: cause})
	if !errors.Is(err, chat.ErrTransport) || !errors.Is(err, cause) {
		t.Errorf("errors.Is failed for %v", err)
	}
	if errors.Is(err, chat.ErrProtocol) {
		t.Error("transport error matched ErrProtocol")
	}
	if chat.KindOf(errors.New("plain")) != 0 {
		t.Error("KindOf(plain) != 0")
	}
	if got := chat.KindApplication.String(); got != "application" {
		t.Errorf("String = %q", got)
	}
}
