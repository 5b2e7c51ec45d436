// Package chat defines the Client interface for the remote multimodal chat
// backend and the turn sequence built on top of it.
//
// One conversation turn is four ordered operations:
//
//  1. Upload every media part (recorded speech, camera frame) and obtain
//     remote file IDs.
//  2. CreateTurn composes the user message from those IDs and the prompt and
//     obtains a [Session] (chat and conversation IDs).
//  3. AwaitCompletion waits until the backend reports a terminal status.
//  4. FetchReplyText extracts the assistant's textual answer.
//
// [RunTurn] performs the sequence. Every failure is a [*Error] carrying a
// [Kind].
//
// Implementations must be safe for concurrent use.
package chat

import (
	"context"
	"strings"
)

// MediaKind distinguishes uploaded media.
type MediaKind int

const (
	MediaAudio MediaKind = iota
	MediaImage
)

// Media is one blob to upload.
type Media struct {
	Kind MediaKind

	// Data is the encoded payload.
	Data []byte

	// MIMEType of Data, e.g. "audio/wav" or "image/jpeg".
	MIMEType string

	// Filename sent with the upload. Derived from Kind and MIMEType when
	// empty.
	Filename string
}

// UploadName returns the filename used when uploading m.
func (m Media) UploadName() string {
	if m.Filename != "" {
		return m.Filename
	}
	if m.Kind == MediaImage {
		return "frame.jpg"
	}
	return "audio." + audioExt(m.MIMEType)
}

// ContentType returns the upload content type of m.
func (m Media) ContentType() string {
	if m.MIMEType != "" {
		return m.MIMEType
	}
	if m.Kind == MediaImage {
		return "image/jpeg"
	}
	return "application/octet-stream"
}

func audioExt(mime string) string {
	switch {
	case strings.Contains(mime, "wav"):
		return "wav"
	case strings.Contains(mime, "ogg"):
		return "ogg"
	case strings.Contains(mime, "mp4"):
		return "m4a"
	case strings.Contains(mime, "aac"):
		return "aac"
	case strings.Contains(mime, "webm"):
		return "webm"
	default:
		return "dat"
	}
}

// AudioFileType maps an audio MIME type to the backend's audio_file_type
// value. It returns "" when the type is unknown, in which case the field is
// omitted.
func AudioFileType(mime string) string {
	switch audioExt(mime) {
	case "wav":
		return "wav"
	case "ogg":
		return "ogg_opus"
	case "m4a":
		return "m4a"
	case "aac":
		return "aac"
	case "webm":
		return "webm"
	default:
		return ""
	}
}

// Turn is the payload of one round trip. Nil parts are omitted.
type Turn struct {
	Audio  *Media
	Image  *Media
	Prompt string

	// BotID overrides the client's default bot for this turn.
	BotID string
}

// CreateRequest is the input to [Client.CreateTurn].
type CreateRequest struct {
	// BotID overrides the client's default bot when non-empty.
	BotID string

	ImageFileID string
	AudioFileID string

	// AudioFileType is forwarded with the audio item when non-empty.
	AudioFileType string

	Prompt string
}

// Status is the backend's lifecycle status of a chat.
type Status string

const (
	StatusCreated        Status = "created"
	StatusInProgress     Status = "in_progress"
	StatusRequiresAction Status = "requires_action"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCanceled       Status = "canceled"

	// StatusTimeout is never reported by the backend; it marks a poll that
	// ran out of attempts.
	StatusTimeout Status = "timeout"
)

// Terminal reports whether s ends a chat.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// StreamResult is what a streaming CreateTurn already learned about the
// chat by the time the stream ended.
type StreamResult struct {
	// Status is the last status seen on the stream, possibly empty.
	Status Status

	// Reply is the assistant's answer text when HasReply is true.
	Reply    string
	HasReply bool

	// FailMsg is the backend's error detail for a failed chat.
	FailMsg string
}

// Session identifies one remote chat. It is valid only within the turn that
// created it.
type Session struct {
	ChatID         string
	ConversationID string

	// Streamed is set by a streaming CreateTurn; AwaitCompletion and
	// FetchReplyText use it instead of issuing requests when it already
	// holds a terminal answer.
	Streamed *StreamResult
}

// Outcome is the result of [Client.AwaitCompletion].
type Outcome struct {
	Status Status

	// Attempts is the number of status requests issued.
	Attempts int
}

// Client is the remote chat backend.
type Client interface {
	// Upload transfers one media blob and returns the remote file ID.
	Upload(ctx context.Context, m Media) (string, error)

	// CreateTurn starts a chat and returns its identifiers.
	CreateTurn(ctx context.Context, req CreateRequest) (Session, error)

	// AwaitCompletion blocks until the chat reaches a terminal status. A
	// completed chat returns a nil error; a failed chat returns an error of
	// [KindFailed]; exhausting the poll budget returns [KindTimeout].
	AwaitCompletion(ctx context.Context, s Session) (Outcome, error)

	// FetchReplyText returns the assistant's latest textual reply. ok is
	// false, with a nil error, when the chat produced no text.
	FetchReplyText(ctx context.Context, s Session) (text string, ok bool, err error)
}
