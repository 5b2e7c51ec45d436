// Package history keeps a log of finished conversation turns.
//
// [Recorder] observes the engine and appends one [Record] per turn to a
// [Store]: [MemStore] by default, or [PostgresStore] when a DSN is configured.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/miniexplorer/internal/engine"
)

// Record is one finished turn.
type Record struct {
	ID             string        `json:"id"`
	Mode           string        `json:"mode"`
	ChatID         string        `json:"chat_id,omitempty"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Status         string        `json:"status,omitempty"`
	Reply          string        `json:"reply,omitempty"`
	ErrorKind      string        `json:"error_kind,omitempty"`
	Error          string        `json:"error,omitempty"`
	AudioBytes     int           `json:"audio_bytes"`
	AudioMIME      string        `json:"audio_mime,omitempty"`
	AudioLen       time.Duration `json:"audio_len"`
	HasImage       bool          `json:"has_image"`
	Farewell       bool          `json:"farewell,omitempty"`
	TraceID        string        `json:"trace_id,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
}

// FromSummary builds a record with a fresh ID from a turn summary.
func FromSummary(s *engine.TurnSummary) Record {
	r := Record{
		ID:             uuid.NewString(),
		Mode:           string(s.Mode),
		ChatID:         s.ChatID,
		ConversationID: s.ConversationID,
		Status:         string(s.Status),
		Reply:          s.Reply,
		AudioBytes:     s.AudioBytes,
		AudioMIME:      s.AudioMIME,
		AudioLen:       s.AudioLen,
		HasImage:       s.HasImage,
		Farewell:       s.Farewell,
		TraceID:        s.TraceID,
		StartedAt:      s.StartedAt,
		Duration:       s.Duration,
	}
	if s.Err != nil {
		r.ErrorKind = s.ErrKind.String()
		r.Error = s.Err.Error()
	}
	return r
}

// Store persists turn records. Implementations must be safe for concurrent
// use.
type Store interface {
	// Append stores r. A record whose ID already exists is ignored.
	Append(ctx context.Context, r Record) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
}
