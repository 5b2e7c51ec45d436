// Package ui connects the conversation engine to its users: a structured log
// of every event, and a WebSocket hub that pushes events to browsers and
// accepts their commands.
package ui

import (
	"log/slog"
	"sync"

	"github.com/MrWong99/miniexplorer/internal/engine"
)

// LogObserver logs every engine event at info level.
type LogObserver struct {
	log *slog.Logger
}

var _ engine.Observer = (*LogObserver)(nil)

// NewLogObserver returns an observer writing to l, or to slog.Default when l
// is nil.
func NewLogObserver(l *slog.Logger) *LogObserver {
	if l == nil {
		l = slog.Default()
	}
	return &LogObserver{log: l}
}

// OnEvent implements [engine.Observer].
func (o *LogObserver) OnEvent(ev engine.Event) {
	switch ev.Kind {
	case engine.EventState:
		attrs := []any{"mode", ev.Mode, "from", ev.Prev.String(), "to", ev.State.String()}
		if ev.Err != nil {
			attrs = append(attrs, "err", ev.Err)
		}
		o.log.Info("ui: state", attrs...)
	case engine.EventCameraHint:
		o.log.Info("ui: camera hint", "mode", ev.Mode, "hint", ev.Hint)
	case engine.EventReply:
		o.log.Info("ui: reply", "mode", ev.Mode, "reply", ev.Reply, "trace_id", ev.TraceID)
	case engine.EventTurn:
		t := ev.Turn
		if t == nil {
			return
		}
		attrs := []any{
			"mode", t.Mode,
			"chat_id", t.ChatID,
			"status", string(t.Status),
			"audio_bytes", t.AudioBytes,
			"image", t.HasImage,
			"duration", t.Duration,
			"trace_id", t.TraceID,
		}
		if t.Err != nil {
			attrs = append(attrs, "kind", t.ErrKind.String(), "err", t.Err)
		}
		o.log.Info("ui: turn", attrs...)
	}
}

// Fanout forwards every event to each of its observers in order.
type Fanout struct {
	mu  sync.RWMutex
	obs []engine.Observer
}

var _ engine.Observer = (*Fanout)(nil)

// NewFanout returns a Fanout over obs; nil entries are skipped.
func NewFanout(obs ...engine.Observer) *Fanout {
	f := &Fanout{}
	for _, o := range obs {
		f.Add(o)
	}
	return f
}

// Add appends o.
func (f *Fanout) Add(o engine.Observer) {
	if o == nil {
		return
	}
	f.mu.Lock()
	f.obs = append(f.obs, o)
	f.mu.Unlock()
}

// OnEvent implements [engine.Observer].
func (f *Fanout) OnEvent(ev engine.Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, o := range f.obs {
		o.OnEvent(ev)
	}
}
