package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/miniexplorer/pkg/provider/camera"
	"github.com/MrWong99/miniexplorer/pkg/provider/chat"
)

// State is the engine's position in the conversation cycle. Exactly one
// state is current at any time.
type State int

const (
	// StateBooting is the clean baseline before a mode is entered and the
	// transient state while devices are being acquired.
	StateBooting State = iota

	// StateNeedPermission waits for an explicit user gesture before any
	// hardware is touched.
	StateNeedPermission

	// StateListening polls the detector for the start of speech.
	StateListening

	// StateRecording has an open segment.
	StateRecording

	// StateThinking has a round trip in flight.
	StateThinking

	// StateSpeaking is playing the reply.
	StateSpeaking

	// StateError is terminal for the session: a mandatory device failed.
	StateError
)

// String returns the lower-case state name used in logs, metrics and UI
// events.
func (s State) String() string {
	switch s {
	case StateBooting:
		return "booting"
	case StateNeedPermission:
		return "need_permission"
	case StateListening:
		return "listening"
	case StateRecording:
		return "recording"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Mode selects the backend bot and prompt of a session.
type Mode string

const (
	ModeExplore   Mode = "explore"
	ModeCompanion Mode = "companion"
)

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeExplore, ModeCompanion:
		return m, nil
	default:
		return "", fmt.Errorf("engine: unknown mode %q", s)
	}
}

// DefaultPrompt accompanies every turn unless a profile overrides it.
const DefaultPrompt = "请根据图片与我的语音回答（如需，先复述你看到的内容）。"

// CameraHint is shown when no frame will accompany the turn.
const CameraHint = "未开启相机，本次不发送画面"

// Profile is the per-mode backend configuration.
type Profile struct {
	// BotID overrides the chat client's default bot when non-empty.
	BotID string

	// Prompt is the text part of every turn. Empty means [DefaultPrompt].
	Prompt string

	// Facing is the camera used when EnterMode is called without one.
	Facing camera.Facing
}

// DefaultProfiles returns the built-in profiles: explore looks at the world
// through the back camera, companion faces the user.
func DefaultProfiles() map[Mode]Profile {
	return map[Mode]Profile{
		ModeExplore:   {Prompt: DefaultPrompt, Facing: camera.FacingEnvironment},
		ModeCompanion: {Prompt: DefaultPrompt, Facing: camera.FacingUser},
	}
}

// EventKind distinguishes [Event] payloads.
type EventKind int

const (
	// EventState reports a state transition in State and Prev. Err is set
	// when the new state is [StateError].
	EventState EventKind = iota + 1

	// EventCameraHint carries the hint text to display; an empty Hint
	// clears it.
	EventCameraHint

	// EventReply carries the assistant's reply before it is spoken.
	EventReply

	// EventTurn reports a finished round trip in Turn, successful or not.
	EventTurn
)

// String returns the event kind name used on the wire.
func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventCameraHint:
		return "camera_hint"
	case EventReply:
		return "reply"
	case EventTurn:
		return "turn"
	default:
		return "unknown"
	}
}

// Event is a notification for the UI layer.
type Event struct {
	Kind EventKind
	Mode Mode
	At   time.Time

	State State
	Prev  State
	Err   error

	Hint  string
	Reply string
	Turn  *TurnSummary

	// TraceID links reply and turn events to the turn's span.
	TraceID string
}

// TurnSummary describes one finished round trip.
type TurnSummary struct {
	Mode           Mode
	ChatID         string
	ConversationID string

	// Status is the backend's terminal status, or empty when the turn
	// failed before polling.
	Status chat.Status

	Reply    string
	HasReply bool

	// ErrKind is the failure kind, zero on success.
	ErrKind chat.Kind
	Err     error

	AudioBytes int
	AudioMIME  string
	AudioLen   time.Duration
	HasImage   bool

	StartedAt time.Time
	Duration  time.Duration
	Farewell  bool

	// TraceID of the "engine.turn" span, empty when tracing is off.
	TraceID string
}

// Observer receives engine events. OnEvent is called synchronously while the
// engine holds its state lock, in transition order; implementations must
// return quickly and must not call back into the Engine.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(Event)

// OnEvent implements [Observer].
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// Host is the surrounding application. NavigateHome is called exactly once
// after a farewell reply tore the session down, without engine locks held.
type Host interface {
	NavigateHome()
}

// HostFunc adapts a function to [Host].
type HostFunc func()

// NavigateHome implements [Host].
func (f HostFunc) NavigateHome() { f() }

// TurnErrorHint is the user-facing text shown when a round trip failed.
func TurnErrorHint(err error) string {
	var ce *chat.Error
	code, status := 0, 0
	if errors.As(err, &ce) {
		code, status = ce.Code, ce.Status
	}
	switch chat.KindOf(err) {
	case chat.KindTransport:
		return "网络连接失败，请稍后再试"
	case chat.KindHTTPStatus:
		return fmt.Sprintf("服务暂时不可用（HTTP %d）", status)
	case chat.KindApplication:
		return fmt.Sprintf("服务返回错误（code %d）", code)
	case chat.KindProtocol:
		return "服务响应格式异常"
	case chat.KindTimeout:
		return "等待回复超时"
	case chat.KindFailed:
		return "对话失败，请再说一次"
	default:
		return "出错了：" + err.Error()
	}
}
