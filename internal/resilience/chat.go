package resilience

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrWong99/miniexplorer/pkg/provider/chat"
)

// ChatClient guards a [chat.Client] with a [CircuitBreaker]. While the
// breaker is open every operation fails immediately with a transport error
// wrapping [ErrCircuitOpen].
type ChatClient struct {
	next    chat.Client
	breaker *CircuitBreaker
}

var _ chat.Client = (*ChatClient)(nil)

// NewChatClient wraps next. When cfg.IsFailure is nil only failures that
// suggest the backend is unreachable or unhealthy are counted: transport
// errors, 5xx and 429 statuses, malformed responses and poll timeouts. A chat
// the backend answered with an application error or a failed status leaves
// the breaker alone.
func NewChatClient(next chat.Client, cfg CircuitBreakerConfig) *ChatClient {
	if cfg.Name == "" {
		cfg.Name = "chat"
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = BackendFailure
	}
	return &ChatClient{next: next, breaker: NewCircuitBreaker(cfg)}
}

// BackendFailure reports whether err means the chat backend is unhealthy.
func BackendFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ce *chat.Error
	if !errors.As(err, &ce) {
		return true
	}
	switch ce.Kind {
	case chat.KindHTTPStatus:
		return ce.Status >= http.StatusInternalServerError || ce.Status == http.StatusTooManyRequests
	case chat.KindApplication, chat.KindFailed:
		return false
	default:
		return true
	}
}

// Breaker exposes the breaker for readiness checks.
func (c *ChatClient) Breaker() *CircuitBreaker { return c.breaker }

// Upload implements [chat.Client].
func (c *ChatClient) Upload(ctx context.Context, m chat.Media) (string, error) {
	var id string
	err := c.breaker.Execute(func() error {
		var err error
		id, err = c.next.Upload(ctx, m)
		return err
	})
	return id, openAsTransport("upload", err)
}

// CreateTurn implements [chat.Client].
func (c *ChatClient) CreateTurn(ctx context.Context, req chat.CreateRequest) (chat.Session, error) {
	var s chat.Session
	err := c.breaker.Execute(func() error {
		var err error
		s, err = c.next.CreateTurn(ctx, req)
		return err
	})
	return s, openAsTransport("create", err)
}

// AwaitCompletion implements [chat.Client].
func (c *ChatClient) AwaitCompletion(ctx context.Context, s chat.Session) (chat.Outcome, error) {
	var out chat.Outcome
	err := c.breaker.Execute(func() error {
		var err error
		out, err = c.next.AwaitCompletion(ctx, s)
		return err
	})
	return out, openAsTransport("retrieve", err)
}

// FetchReplyText implements [chat.Client].
func (c *ChatClient) FetchReplyText(ctx context.Context, s chat.Session) (string, bool, error) {
	var (
		text string
		ok   bool
	)
	err := c.breaker.Execute(func() error {
		var err error
		text, ok, err = c.next.FetchReplyText(ctx, s)
		return err
	})
	return text, ok, openAsTransport("message_list", err)
}

func openAsTransport(op string, err error) error {
	if !errors.Is(err, ErrCircuitOpen) {
		return err
	}
	return &chat.Error{Kind: chat.KindTransport, Op: op, Msg: "backend unavailable", Err: err}
}
