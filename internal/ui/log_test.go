package ui_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/miniexplorer/internal/engine"
	"github.com/MrWong99/miniexplorer/internal/engine/mock"
	"github.com/MrWong99/miniexplorer/internal/ui"
	"github.com/MrWong99/miniexplorer/pkg/provider/chat"
)

func TestLogObserver(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	o := ui.NewLogObserver(slog.New(slog.NewTextHandler(&buf, nil)))

	o.OnEvent(engine.Event{Kind: engine.EventState, Mode: engine.ModeExplore, Prev: engine.StateBooting, State: engine.StateError, Err: errors.New("permission denied")})
	o.OnEvent(engine.Event{Kind: engine.EventCameraHint, Hint: engine.CameraHint})
	o.OnEvent(engine.Event{Kind: engine.EventReply, Reply: "这是一只猫"})
	o.OnEvent(engine.Event{Kind: engine.EventTurn, Turn: &engine.TurnSummary{
		ChatID: "chat_9", Status: chat.StatusFailed, Duration: time.Second,
		Err: &chat.Error{Kind: chat.KindFailed}, ErrKind: chat.KindFailed,
	}})

	out := buf.String()
	for _, want := range []string{
		"from=booting to=error",
		`err="permission denied"`,
		"hint=" + engine.CameraHint,
		"reply=这是一只猫",
		"chat_id=chat_9",
		"kind=failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestFanout(t *testing.T) {
	t.Parallel()
	a, b := &mock.Observer{}, &mock.Observer{}
	f := ui.NewFanout(a, nil)
	f.Add(b)

	f.OnEvent(engine.Event{Kind: engine.EventState, State: engine.StateListening})
	f.OnEvent(engine.Event{Kind: engine.EventReply, Reply: "hi"})

	for name, o := range map[string]*mock.Observer{"a": a, "b": b} {
		if got := len(o.Events()); got != 2 {
			t.Errorf("%s received %d events, want 2", name, got)
		}
	}
	if got := a.States(); len(got) != 1 || got[0] != engine.StateListening {
		t.Errorf("states = %v", got)
	}
}
