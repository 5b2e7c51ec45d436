// Package mock provides an in-memory mock implementation of [chat.Client] for
// use in unit tests.
//
// The mock is safe for concurrent use. It records every call so that tests
// can assert on ordering and arguments, and exposes exported fields that
// control return values.
//
// Typical usage:
//
//	c := &mock.Client{Reply: "你好", HasReply: true}
//	res, err := chat.RunTurn(ctx, c, turn, nil)
//	// assert c.Calls() == []string{"upload", "create", "await", "fetch"}
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/miniexplorer/pkg/provider/chat"
)

// Client is a mock implementation of [chat.Client].
type Client struct {
	mu sync.Mutex

	// UploadErr is returned by Upload when non-nil.
	UploadErr error

	// UploadErrKind restricts UploadErr to one media kind when set.
	UploadErrKind *chat.MediaKind

	// CreateErr is returned by CreateTurn when non-nil.
	CreateErr error

	// Session is returned by CreateTurn. Defaults to chat_1/conv_1.
	Session chat.Session

	// AwaitErr is returned by AwaitCompletion when non-nil.
	AwaitErr error

	// Outcome is returned by AwaitCompletion. Defaults to completed after one
	// attempt.
	Outcome chat.Outcome

	// FetchErr is returned by FetchReplyText when non-nil.
	FetchErr error

	// Reply and HasReply are returned by FetchReplyText.
	Reply    string
	HasReply bool

	// Block, when non-nil, is received from at the start of CreateTurn so
	// tests can hold a turn in flight.
	Block chan struct{}

	calls    []string
	uploads  []chat.Media
	creates  []chat.CreateRequest
	sessions []chat.Session
	nextID   int
}

var _ chat.Client = (*Client)(nil)

func (c *Client) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

// Upload implements [chat.Client].
func (c *Client) Upload(ctx context.Context, m chat.Media) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, "upload")
	c.uploads = append(c.uploads, m)
	c.nextID++
	id := fmt.Sprintf("file_%d", c.nextID)
	err := c.UploadErr
	if c.UploadErrKind != nil && *c.UploadErrKind != m.Kind {
		err = nil
	}
	c.mu.Unlock()
	if err != nil {
		return "", err
	}
	return id, ctx.Err()
}

// CreateTurn implements [chat.Client].
func (c *Client) CreateTurn(ctx context.Context, req chat.CreateRequest) (chat.Session, error) {
	c.mu.Lock()
	c.calls = append(c.calls, "create")
	c.creates = append(c.creates, req)
	block := c.Block
	c.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return chat.Session{}, &chat.Error{Kind: chat.KindTransport, Op: "create", Err: ctx.Err()}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CreateErr != nil {
		return chat.Session{}, c.CreateErr
	}
	s := c.Session
	if s.ChatID == "" {
		s = chat.Session{ChatID: "chat_1", ConversationID: "conv_1"}
	}
	return s, nil
}

// AwaitCompletion implements [chat.Client].
func (c *Client) AwaitCompletion(_ context.Context, s chat.Session) (chat.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, "await")
	c.sessions = append(c.sessions, s)
	out := c.Outcome
	if out.Status == "" {
		out = chat.Outcome{Status: chat.StatusCompleted, Attempts: 1}
	}
	return out, c.AwaitErr
}

// FetchReplyText implements [chat.Client].
func (c *Client) FetchReplyText(_ context.Context, _ chat.Session) (string, bool, error) {
	c.record("fetch")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FetchErr != nil {
		return "", false, c.FetchErr
	}
	return c.Reply, c.HasReply, nil
}

// SetReply changes the reply returned by subsequent FetchReplyText calls.
func (c *Client) SetReply(text string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Reply, c.HasReply = text, ok
}

// SetAwaitErr changes the error returned by subsequent AwaitCompletion calls.
func (c *Client) SetAwaitErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AwaitErr = err
}

// Calls returns the operation names in call order.
func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Uploads returns a copy of every uploaded media.
func (c *Client) Uploads() []chat.Media {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.Media(nil), c.uploads...)
}

// Creates returns a copy of every CreateTurn request.
func (c *Client) Creates() []chat.CreateRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.CreateRequest(nil), c.creates...)
}

// Reset clears recorded calls.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
	c.uploads = nil
	c.creates = nil
	c.sessions = nil
}
