package app_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/miniexplorer/internal/app"
	"github.com/MrWong99/miniexplorer/internal/engine"
	"github.com/MrWong99/miniexplorer/pkg/provider/camera"
)

// fakeEngine records the commands it receives.
type fakeEngine struct {
	mu       sync.Mutex
	calls    []string
	enterErr error
	startErr error
	facing   camera.Facing
}

func (f *fakeEngine) EnterMode(_ context.Context, mode engine.Mode, facing camera.Facing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "enter:"+string(mode))
	if f.enterErr != nil {
		return f.enterErr
	}
	if facing == "" {
		facing = camera.FacingEnvironment
	}
	f.facing = facing
	return nil
}

func (f *fakeEngine) StartAfterUserGesture(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "start")
	return f.startErr
}

func (f *fakeEngine) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stop")
}

func (f *fakeEngine) Status() engine.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return engine.Status{State: engine.StateListening, Facing: f.facing, Threshold: 0.025}
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestSessionManager_Exec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line      string
		wantOut   string
		wantErr   string
		wantCalls string
		screen    string
	}{
		{line: "", screen: app.ScreenHome},
		{line: "   ", screen: app.ScreenHome},
		{line: "enter explore", wantOut: "entered explore", wantCalls: "enter:explore", screen: "explore"},
		{line: "ENTER Companion user", wantOut: "entered companion", wantCalls: "enter:companion", screen: "companion"},
		{line: "enter", wantErr: "usage", screen: app.ScreenHome},
		{line: "enter explore user extra", wantErr: "usage", screen: app.ScreenHome},
		{line: "enter karaoke", wantErr: "unknown mode", screen: app.ScreenHome},
		{line: "enter explore sideways", wantErr: "unknown facing", screen: app.ScreenHome},
		{line: "start", wantOut: "listening", wantCalls: "start", screen: app.ScreenHome},
		{line: "stop", wantOut: "stopped", wantCalls: "stop", screen: app.ScreenHome},
		{line: "status", wantOut: "screen=home state=listening threshold=0.0250", screen: app.ScreenHome},
		{line: "dance", wantErr: "unknown command", screen: app.ScreenHome},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			t.Parallel()
			eng := &fakeEngine{}
			sm := app.NewSessionManager(app.SessionManagerConfig{Engine: eng})

			out, err := sm.Exec(context.Background(), tt.line)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("err = %v", err)
			}
			if !strings.Contains(out, tt.wantOut) {
				t.Errorf("out = %q, want %q", out, tt.wantOut)
			}
			if got := strings.Join(eng.Calls(), ","); got != tt.wantCalls {
				t.Errorf("calls = %q, want %q", got, tt.wantCalls)
			}
			if got := sm.Screen(); got != tt.screen {
				t.Errorf("Screen = %q, want %q", got, tt.screen)
			}
		})
	}
}

func TestSessionManager_Quit(t *testing.T) {
	t.Parallel()
	sm := app.NewSessionManager(app.SessionManagerConfig{Engine: &fakeEngine{}})
	for _, line := range []string{"quit", "exit"} {
		if _, err := sm.Exec(context.Background(), line); !errors.Is(err, app.ErrQuit) {
			t.Errorf("%s: err = %v, want ErrQuit", line, err)
		}
	}
}

func TestSessionManager_Lifecycle(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{}
	homes := make(chan struct{}, 1)
	sm := app.NewSessionManager(app.SessionManagerConfig{
		Engine: eng,
		OnHome: func() { homes <- struct{}{} },
	})
	ctx := context.Background()

	if err := sm.EnterMode(ctx, engine.ModeCompanion, camera.FacingUser); err != nil {
		t.Fatal(err)
	}
	info := sm.Info()
	if info.Mode != engine.ModeCompanion || info.Facing != camera.FacingUser || info.Via != "ui" || info.EnteredAt.IsZero() {
		t.Errorf("Info = %+v", info)
	}
	if sm.IsActive() {
		t.Error("active before the user gesture")
	}
	if err := sm.StartAfterUserGesture(ctx); err != nil {
		t.Fatal(err)
	}
	if !sm.IsActive() {
		t.Error("not active after the user gesture")
	}

	sm.NavigateHome()
	select {
	case <-homes:
	case <-time.After(time.Second):
		t.Fatal("OnHome not called")
	}
	if sm.Screen() != app.ScreenHome || sm.IsActive() || sm.Homes() != 1 {
		t.Errorf("after NavigateHome: screen=%s active=%v homes=%d", sm.Screen(), sm.IsActive(), sm.Homes())
	}
	if (sm.Info() != app.SessionInfo{}) {
		t.Errorf("Info not cleared: %+v", sm.Info())
	}
}

func TestSessionManager_FailuresKeepScreen(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{enterErr: errors.New("camera busy")}
	sm := app.NewSessionManager(app.SessionManagerConfig{Engine: eng})

	if err := sm.EnterMode(context.Background(), engine.ModeExplore, ""); err == nil {
		t.Fatal("expected error")
	}
	if sm.Screen() != app.ScreenHome {
		t.Errorf("Screen = %q after failed enter", sm.Screen())
	}

	eng.enterErr = nil
	eng.startErr = engine.ErrNotReady
	_ = sm.EnterMode(context.Background(), engine.ModeExplore, "")
	if err := sm.StartAfterUserGesture(context.Background()); !errors.Is(err, engine.ErrNotReady) {
		t.Fatalf("err = %v", err)
	}
	if sm.IsActive() {
		t.Error("active after a failed start")
	}
}

func TestSessionManager_RunCommands(t *testing.T) {
	t.Parallel()

	t.Run("eof", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		sm := app.NewSessionManager(app.SessionManagerConfig{Engine: &fakeEngine{}})
		err := sm.RunCommands(context.Background(), strings.NewReader("enter explore\nstart\nnope\n"), &out)
		if err != nil {
			t.Fatalf("RunCommands = %v", err)
		}
		want := "entered explore; type 'start' to begin\nlistening\nerror: unknown command \"nope\" (enter, start, stop, status, quit)\n"
		if out.String() != want {
			t.Errorf("output = %q, want %q", out.String(), want)
		}
	})

	t.Run("quit", func(t *testing.T) {
		t.Parallel()
		eng := &fakeEngine{}
		sm := app.NewSessionManager(app.SessionManagerConfig{Engine: eng})
		err := sm.RunCommands(context.Background(), strings.NewReader("quit\nenter explore\n"), io.Discard)
		if !errors.Is(err, app.ErrQuit) {
			t.Fatalf("RunCommands = %v, want ErrQuit", err)
		}
		if len(eng.Calls()) != 0 {
			t.Errorf("commands after quit ran: %v", eng.Calls())
		}
	})

	t.Run("cancel", func(t *testing.T) {
		t.Parallel()
		pr, pw := io.Pipe()
		defer pw.Close()
		sm := app.NewSessionManager(app.SessionManagerConfig{Engine: &fakeEngine{}})
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- sm.RunCommands(ctx, pr, io.Discard) }()
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("RunCommands = %v, want nil", err)
			}
		case <-time.After(time.Second):
			t.Fatal("RunCommands did not return after cancel")
		}
	})
}
