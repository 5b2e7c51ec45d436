package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/miniexplorer/internal/engine"
	"github.com/MrWong99/miniexplorer/internal/ui"
	"github.com/MrWong99/miniexplorer/pkg/provider/camera"
)

// ScreenHome is the idle screen shown before a mode is entered and after a
// session ends.
const ScreenHome = "home"

// ErrQuit is returned by [SessionManager.Exec] for the "quit" command.
var ErrQuit = errors.New("app: quit requested")

// SessionInfo holds metadata about the current mode session.
type SessionInfo struct {
	Mode   engine.Mode
	Facing camera.Facing

	// EnteredAt is when the mode was entered.
	EnteredAt time.Time

	// StartedAt is when the user gesture started the session; zero while
	// waiting for it.
	StartedAt time.Time

	// Via names the surface that entered the mode: "cli" or "ui".
	Via string
}

// SessionManager tracks which screen the app shows and drives the engine on
// behalf of the command line and the browser UI. It implements
// [ui.Controller] and [engine.Host].
// All exported methods are safe for concurrent use.
type SessionManager struct {
	ctrl   ui.Controller
	onHome func()

	mu     sync.Mutex
	screen string
	info   SessionInfo
	homes  int
}

var (
	_ ui.Controller = (*SessionManager)(nil)
	_ engine.Host   = (*SessionManager)(nil)
)

// SessionManagerConfig holds the dependencies of a [SessionManager].
type SessionManagerConfig struct {
	// Engine receives every command.
	Engine ui.Controller

	// OnHome, if set, runs after the app returned to the home screen because
	// a session ended on its own.
	OnHome func()
}

// NewSessionManager returns a manager showing the home screen.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	return &SessionManager{ctrl: cfg.Engine, onHome: cfg.OnHome, screen: ScreenHome}
}

// Screen returns "home" or the name of the entered mode.
func (sm *SessionManager) Screen() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.screen
}

// Info returns the current session metadata; zero on the home screen.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// IsActive reports whether a session was started by a user gesture and has
// not ended.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return !sm.info.StartedAt.IsZero()
}

// Homes returns how many times a session ended on its own.
func (sm *SessionManager) Homes() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.homes
}

// EnterMode implements [ui.Controller].
func (sm *SessionManager) EnterMode(ctx context.Context, mode engine.Mode, facing camera.Facing) error {
	return sm.enter(ctx, mode, facing, "ui")
}

func (sm *SessionManager) enter(ctx context.Context, mode engine.Mode, facing camera.Facing, via string) error {
	if err := sm.ctrl.EnterMode(ctx, mode, facing); err != nil {
		return err
	}
	st := sm.ctrl.Status()
	sm.mu.Lock()
	sm.screen = string(mode)
	sm.info = SessionInfo{Mode: mode, Facing: st.Facing, EnteredAt: time.Now(), Via: via}
	sm.mu.Unlock()
	slog.Info("app: entered mode", "mode", mode, "facing", st.Facing, "via", via)
	return nil
}

// StartAfterUserGesture implements [ui.Controller].
func (sm *SessionManager) StartAfterUserGesture(ctx context.Context) error {
	if err := sm.ctrl.StartAfterUserGesture(ctx); err != nil {
		return err
	}
	sm.mu.Lock()
	sm.info.StartedAt = time.Now()
	sm.mu.Unlock()
	return nil
}

// Stop implements [ui.Controller]. It ends the session and returns to the
// home screen.
func (sm *SessionManager) Stop() {
	sm.ctrl.Stop()
	sm.mu.Lock()
	prev := sm.screen
	sm.screen = ScreenHome
	sm.info = SessionInfo{}
	sm.mu.Unlock()
	if prev != ScreenHome {
		slog.Info("app: session stopped", "mode", prev)
	}
}

// Status implements [ui.Controller].
func (sm *SessionManager) Status() engine.Status {
	return sm.ctrl.Status()
}

// NavigateHome implements [engine.Host]. The engine calls it after a
// farewell reply ended the session.
func (sm *SessionManager) NavigateHome() {
	sm.mu.Lock()
	prev := sm.info
	sm.screen = ScreenHome
	sm.info = SessionInfo{}
	sm.homes++
	sm.mu.Unlock()

	attrs := []any{"mode", prev.Mode}
	if !prev.StartedAt.IsZero() {
		attrs = append(attrs, "session_duration", time.Since(prev.StartedAt).Round(time.Millisecond))
	}
	slog.Info("app: farewell, back to home screen", attrs...)
	if sm.onHome != nil {
		sm.onHome()
	}
}

// Exec runs one command line:
//
//	enter <explore|companion> [environment|user]
//	start
//	stop
//	status
//	quit
//
// It returns [ErrQuit] for quit.
func (sm *SessionManager) Exec(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	switch cmd := strings.ToLower(fields[0]); cmd {
	case "enter":
		if len(fields) < 2 || len(fields) > 3 {
			return "", errors.New("usage: enter <explore|companion> [environment|user]")
		}
		mode, err := engine.ParseMode(fields[1])
		if err != nil {
			return "", err
		}
		var facing camera.Facing
		if len(fields) == 3 {
			if facing, err = camera.ParseFacing(strings.ToLower(fields[2])); err != nil {
				return "", err
			}
		}
		if err := sm.enter(ctx, mode, facing, "cli"); err != nil {
			return "", err
		}
		return fmt.Sprintf("entered %s; type 'start' to begin", mode), nil
	case "start":
		if err := sm.StartAfterUserGesture(ctx); err != nil {
			return "", err
		}
		return "listening", nil
	case "stop":
		sm.Stop()
		return "stopped", nil
	case "status":
		st := sm.Status()
		return fmt.Sprintf("screen=%s state=%s threshold=%.4f", sm.Screen(), st.State, st.Threshold), nil
	case "quit", "exit":
		return "", ErrQuit
	default:
		return "", fmt.Errorf("unknown command %q (enter, start, stop, status, quit)", cmd)
	}
}

// RunCommands reads command lines from r until EOF, "quit" or ctx is done,
// writing responses to w. Command errors are reported and reading continues.
func (sm *SessionManager) RunCommands(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			out, err := sm.Exec(ctx, line)
			switch {
			case errors.Is(err, ErrQuit):
				return ErrQuit
			case err != nil:
				fmt.Fprintf(w, "error: %v\n", err)
			case out != "":
				fmt.Fprintln(w, out)
			}
		}
	}
}
