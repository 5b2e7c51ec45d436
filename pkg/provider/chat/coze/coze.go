// Package coze implements [chat.Client] against the Coze open API.
//
// Endpoints used:
//
//	POST /v1/files/upload                       multipart upload, field "file"
//	POST /v3/chat                               create a chat (JSON or SSE)
//	POST /v3/chat/retrieve?conversation_id&chat_id   poll status
//	GET  /v3/chat/message/list?conversation_id&chat_id list messages
//
// All requests carry "Authorization: Bearer <token>". Responses share the
// envelope {"code": int, "msg": string, "data": ...}; a missing code is
// treated as success.
//
// When a turn carries audio and streaming is enabled, CreateTurn requests an
// SSE response and consumes it to the end. The resulting [chat.Session]
// already knows the terminal status and the reply, so AwaitCompletion and
// FetchReplyText return without further requests.
//
// Usage:
//
//	c, err := coze.New(token, coze.WithBotID("7598529675404886059"))
//	res, err := chat.RunTurn(ctx, c, turn, nil)
package coze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/miniexplorer/pkg/provider/chat"
)

const (
	// DefaultBaseURL is the public Coze API endpoint for mainland China.
	DefaultBaseURL = "https://api.coze.cn"

	// DefaultUserID identifies this device to the backend.
	DefaultUserID = "h5-device"

	DefaultPollAttempts = 25
	DefaultPollInterval = 300 * time.Millisecond

	defaultTimeout = 60 * time.Second

	// maxErrorBody bounds how much of an error body is kept in messages.
	maxErrorBody = 512
)

// Compile-time assertion that Client implements chat.Client.
var _ chat.Client = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Defaults to [DefaultBaseURL].
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithBotID sets the default bot used when a request names none.
func WithBotID(id string) Option {
	return func(c *Client) {
		c.botID = id
	}
}

// WithUserID sets the user_id reported with every chat. Defaults to
// [DefaultUserID].
func WithUserID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.userID = id
		}
	}
}

// WithHTTPClient replaces the HTTP client. Defaults to a client with a 60 s
// timeout. The timeout does not apply to streamed turns, which are bounded by
// the request context instead.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithPolling sets the completion poll budget. Defaults to 25 attempts every
// 300 ms.
func WithPolling(attempts int, interval time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.pollAttempts = attempts
		}
		if interval >= 0 {
			c.pollInterval = interval
		}
	}
}

// WithStreaming enables or disables SSE transport for turns that carry
// audio. Enabled by default.
func WithStreaming(enabled bool) Option {
	return func(c *Client) {
		c.stream = enabled
	}
}

// Client talks to the Coze API.
type Client struct {
	baseURL      string
	token        string
	botID        string
	userID       string
	stream       bool
	pollAttempts int
	pollInterval time.Duration
	httpClient   *http.Client
	// streamClient shares httpClient's transport without its timeout, which
	// would otherwise cut off a long event stream mid-reply.
	streamClient *http.Client
}

// New creates a Client authenticated with token. token must be non-empty.
func New(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, errors.New("coze: token must not be empty")
	}
	c := &Client{
		baseURL:      DefaultBaseURL,
		token:        token,
		userID:       DefaultUserID,
		stream:       true,
		pollAttempts: DefaultPollAttempts,
		pollInterval: DefaultPollInterval,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	sc := *c.httpClient
	sc.Timeout = 0
	c.streamClient = &sc
	return c, nil
}

// envelope is the common response wrapper.
type envelope struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Upload implements [chat.Client].
func (c *Client) Upload(ctx context.Context, m chat.Media) (string, error) {
	const op = "upload"
	if len(m.Data) == 0 {
		return "", &chat.Error{Kind: chat.KindProtocol, Op: op, Msg: "empty media"}
	}

	var body bytes.Buffer
	contentType, err := writeUpload(&body, m)
	if err != nil {
		return "", &chat.Error{Kind: chat.KindProtocol, Op: op, Msg: "build multipart body", Err: err}
	}

	req, err := c.newRequest(ctx, op, http.MethodPost, "/v1/files/upload", nil, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	env, err := c.do(req, op)
	if err != nil {
		return "", err
	}
	var file struct {
		ID string `json:"id"`
	}
	if len(env.Data) > 0 {
		_ = json.Unmarshal(env.Data, &file)
	}
	if file.ID == "" {
		return "", &chat.Error{Kind: chat.KindProtocol, Op: op, Msg: "response has no data.id"}
	}
	return file.ID, nil
}

// writeUpload writes m to w as a single-file multipart form and returns the
// form's content type.
func writeUpload(w io.Writer, m chat.Media) (string, error) {
	mw := multipart.NewWriter(w)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": m.UploadName(),
	}))
	h.Set("Content-Type", m.ContentType())
	fw, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(m.Data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}
	return mw.FormDataContentType(), nil
}

// contentItem is one element of an object_string user message.
type contentItem struct {
	Type          string `json:"type"`
	FileID        string `json:"file_id,omitempty"`
	AudioFileType string `json:"audio_file_type,omitempty"`
	Text          string `json:"text,omitempty"`
}

type additionalMessage struct {
	Role        string `json:"role"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

type createPayload struct {
	BotID              string              `json:"bot_id"`
	UserID             string              `json:"user_id"`
	AdditionalMessages []additionalMessage `json:"additional_messages"`
	AutoSaveHistory    bool                `json:"auto_save_history"`
	Stream             bool                `json:"stream"`
}

// chatObject is the chat as returned by create and retrieve.
type chatObject struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	LastError      *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"last_error"`
}

// BuildContent serialises the ordered content array of a user message:
// image, then audio, then text, each only when present.
func BuildContent(req chat.CreateRequest) (string, error) {
	items := make([]contentItem, 0, 3)
	if req.ImageFileID != "" {
		items = append(items, contentItem{Type: "image", FileID: req.ImageFileID})
	}
	if req.AudioFileID != "" {
		items = append(items, contentItem{Type: "audio", FileID: req.AudioFileID, AudioFileType: req.AudioFileType})
	}
	if req.Prompt != "" {
		items = append(items, contentItem{Type: "text", Text: req.Prompt})
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", &chat.Error{Kind: chat.KindProtocol, Op: "create", Msg: "marshal content", Err: err}
	}
	return string(b), nil
}

// CreateTurn implements [chat.Client].
func (c *Client) CreateTurn(ctx context.Context, req chat.CreateRequest) (chat.Session, error) {
	const op = "create"
	botID := req.BotID
	if botID == "" {
		botID = c.botID
	}
	if botID == "" {
		return chat.Session{}, &chat.Error{Kind: chat.KindProtocol, Op: op, Msg: "no bot_id configured"}
	}
	if req.ImageFileID == "" && req.AudioFileID == "" && req.Prompt == "" {
		return chat.Session{}, &chat.Error{Kind: chat.KindProtocol, Op: op, Msg: "empty turn"}
	}

	content, err := BuildContent(req)
	if err != nil {
		return chat.Session{}, err
	}
	stream := c.stream && req.AudioFileID != ""
	payload := createPayload{
		BotID:  botID,
		UserID: c.userID,
		AdditionalMessages: []additionalMessage{{
			Role:        "user",
			ContentType: "object_string",
			Content:     content,
		}},
		AutoSaveHistory: false,
		Stream:          stream,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return chat.Session{}, &chat.Error{Kind: chat.KindProtocol, Op: op, Msg: "marshal chat payload", Err: err}
	}

	hr, err := c.newRequest(ctx, op, http.MethodPost, "/v3/chat", nil, bytes.NewReader(body))
	if err != nil {
		return chat.Session{}, err
	}
	hr.Header.Set("Content-Type", "application/json")

	if stream {
		return c.createStreaming(hr)
	}

	env, err := c.do(hr, op)
	if err != nil {
		return chat.Session{}, err
	}
	var obj chatObject
	if len(env.Data) > 0 {
		_ = json.Unmarshal(env.Data, &obj)
	}
	if obj.ID == "" || obj.ConversationID == "" {
		return chat.Session{}, &chat.Error{Kind: chat.KindProtocol, Op: op, Msg: "response lacks chat id or conversation id"}
	}
	return chat.Session{ChatID: obj.ID, ConversationID: obj.ConversationID}, nil
}

// AwaitCompletion implements [chat.Client]. Non-2xx or undecodable poll
// responses are not terminal; polling continues until the budget runs out.
func (c *Client) AwaitCompletion(ctx context.Context, s chat.Session) (chat.Outcome, error) {
	const op = "retrieve"
	if st := s.Streamed; st != nil && st.Status.Terminal() {
		return outcome(op, st.Status, 0, st.FailMsg)
	}

	q := url.Values{"conversation_id": {s.ConversationID}, "chat_id": {s.ChatID}}
	for attempt := 1; attempt <= c.pollAttempts; attempt++ {
		req, err := c.newRequest(ctx, op, http.MethodPost, "/v3/chat/retrieve", q, nil)
		if err != nil {
			return chat.Outcome{}, err
		}
		env, err := c.do(req, op)
		switch {
		case err == nil:
			var obj chatObject
			if len(env.Data) > 0 && json.Unmarshal(env.Data, &obj) == nil {
				if st := chat.Status(obj.Status); st.Terminal() {
					msg := ""
					if obj.LastError != nil {
						msg = obj.LastError.Msg
					}
					return outcome(op, st, attempt, msg)
				}
			}
		case chat.KindOf(err) == chat.KindTransport:
			return chat.Outcome{Attempts: attempt}, err
		}

		if attempt < c.pollAttempts {
			if err := sleep(ctx, c.pollInterval); err != nil {
				return chat.Outcome{Attempts: attempt}, &chat.Error{Kind: chat.KindTransport, Op: op, Err: err}
			}
		}
	}
	return chat.Outcome{Status: chat.StatusTimeout, Attempts: c.pollAttempts},
		&chat.Error{Kind: chat.KindTimeout, Op: op, Msg: fmt.Sprintf("no terminal status after %d attempts", c.pollAttempts)}
}

func outcome(op string, st chat.Status, attempts int, msg string) (chat.Outcome, error) {
	out := chat.Outcome{Status: st, Attempts: attempts}
	if st == chat.StatusCompleted {
		return out, nil
	}
	if msg == "" {
		msg = "status " + string(st)
	}
	return out, &chat.Error{Kind: chat.KindFailed, Op: op, Msg: msg}
}

// FetchReplyText implements [chat.Client].
func (c *Client) FetchReplyText(ctx context.Context, s chat.Session) (string, bool, error) {
	const op = "message_list"
	if st := s.Streamed; st != nil && st.HasReply {
		return st.Reply, true, nil
	}

	q := url.Values{"conversation_id": {s.ConversationID}, "chat_id": {s.ChatID}}
	req, err := c.newRequest(ctx, op, http.MethodGet, "/v3/chat/message/list", q, nil)
	if err != nil {
		return "", false, err
	}
	env, err := c.do(req, op)
	if err != nil {
		return "", false, err
	}
	var msgs []Message
	if len(env.Data) == 0 || json.Unmarshal(env.Data, &msgs) != nil {
		return "", false, nil
	}
	text, ok := ReplyText(msgs)
	return text, ok, nil
}

func (c *Client) newRequest(ctx context.Context, op, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, &chat.Error{Kind: chat.KindProtocol, Op: op, Msg: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

// do executes req and decodes the response envelope, mapping every failure
// to a [chat.Error].
func (c *Client) do(req *http.Request, op string) (envelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return envelope{}, &chat.Error{Kind: chat.KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, &chat.Error{Kind: chat.KindTransport, Op: op, Status: resp.StatusCode, Err: err}
	}
	return decodeEnvelope(op, resp.StatusCode, data)
}

func decodeEnvelope(op string, status int, data []byte) (envelope, error) {
	var env envelope
	jsonErr := json.Unmarshal(data, &env)

	if status < 200 || status > 299 {
		e := &chat.Error{Kind: chat.KindHTTPStatus, Op: op, Status: status, Msg: truncate(data)}
		if jsonErr == nil && env.Code != nil {
			e.Code = *env.Code
			if env.Msg != "" {
				e.Msg = env.Msg
			}
		}
		return envelope{}, e
	}
	if jsonErr != nil {
		return envelope{}, &chat.Error{Kind: chat.KindProtocol, Op: op, Status: status, Msg: "invalid JSON: " + truncate(data), Err: jsonErr}
	}
	if env.Code != nil && *env.Code != 0 {
		return envelope{}, &chat.Error{Kind: chat.KindApplication, Op: op, Status: status, Code: *env.Code, Msg: env.Msg}
	}
	return env, nil
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "…"
	}
	return s
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
