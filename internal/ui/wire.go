package ui

import (
	"time"

	"github.com/MrWong99/miniexplorer/internal/engine"
)

// Message types pushed to clients.
const (
	TypeState      = "state"
	TypeCameraHint = "camera_hint"
	TypeReply      = "reply"
	TypeTurn       = "turn"
	TypeStatus     = "status"
	TypeAck        = "ack"
)

// Message is one JSON frame sent to a browser.
type Message struct {
	Type string    `json:"type"`
	Mode string    `json:"mode,omitempty"`
	At   time.Time `json:"at"`

	State string `json:"state,omitempty"`
	Prev  string `json:"prev,omitempty"`
	Error string `json:"error,omitempty"`

	// Hint is a pointer so that clearing the hint is sent as "".
	Hint  *string `json:"hint,omitempty"`
	Reply string  `json:"reply,omitempty"`
	Turn  *Turn   `json:"turn,omitempty"`

	Status *Snapshot `json:"status,omitempty"`

	// Cmd names the command an ack answers.
	Cmd string `json:"cmd,omitempty"`

	TraceID string `json:"trace_id,omitempty"`
}

// Turn is the wire form of [engine.TurnSummary].
type Turn struct {
	ChatID         string `json:"chat_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Status         string `json:"status,omitempty"`
	Reply          string `json:"reply,omitempty"`
	ErrorKind      string `json:"error_kind,omitempty"`
	Error          string `json:"error,omitempty"`
	AudioBytes     int    `json:"audio_bytes"`
	AudioMIME      string `json:"audio_mime,omitempty"`
	AudioMS        int64  `json:"audio_ms"`
	HasImage       bool   `json:"has_image"`
	DurationMS     int64  `json:"duration_ms"`
	Farewell       bool   `json:"farewell,omitempty"`
}

// Snapshot is the wire form of [engine.Status], sent on connect and in
// answer to the "status" command.
type Snapshot struct {
	State     string  `json:"state"`
	Mode      string  `json:"mode,omitempty"`
	Facing    string  `json:"facing,omitempty"`
	Hint      string  `json:"hint,omitempty"`
	LastReply string  `json:"last_reply,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// Command is one JSON frame received from a browser.
type Command struct {
	// Cmd is "enter", "start", "stop" or "status".
	Cmd    string `json:"cmd"`
	Mode   string `json:"mode,omitempty"`
	Facing string `json:"facing,omitempty"`
}

// FromEvent converts an engine event to its wire form.
func FromEvent(ev engine.Event) Message {
	m := Message{
		Type:    ev.Kind.String(),
		Mode:    string(ev.Mode),
		At:      ev.At,
		TraceID: ev.TraceID,
	}
	switch ev.Kind {
	case engine.EventState:
		m.State = ev.State.String()
		m.Prev = ev.Prev.String()
		if ev.Err != nil {
			m.Error = ev.Err.Error()
		}
	case engine.EventCameraHint:
		hint := ev.Hint
		m.Hint = &hint
	case engine.EventReply:
		m.Reply = ev.Reply
	case engine.EventTurn:
		if ev.Turn != nil {
			m.Turn = fromSummary(ev.Turn)
		}
	}
	return m
}

func fromSummary(s *engine.TurnSummary) *Turn {
	t := &Turn{
		ChatID:         s.ChatID,
		ConversationID: s.ConversationID,
		Status:         string(s.Status),
		Reply:          s.Reply,
		AudioBytes:     s.AudioBytes,
		AudioMIME:      s.AudioMIME,
		AudioMS:        s.AudioLen.Milliseconds(),
		HasImage:       s.HasImage,
		DurationMS:     s.Duration.Milliseconds(),
		Farewell:       s.Farewell,
	}
	if s.Err != nil {
		t.ErrorKind = s.ErrKind.String()
		t.Error = s.Err.Error()
	}
	return t
}

// FromStatus converts an engine snapshot to its wire form.
func FromStatus(st engine.Status) *Snapshot {
	return &Snapshot{
		State:     st.State.String(),
		Mode:      string(st.Mode),
		Facing:    string(st.Facing),
		Hint:      st.Hint,
		LastReply: st.LastReply,
		Threshold: st.Threshold,
	}
}
