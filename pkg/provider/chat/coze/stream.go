package coze

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/miniexplorer/pkg/provider/chat"
)

// Streamed event names.
const (
	eventChatCreated      = "conversation.chat.created"
	eventChatInProgress   = "conversation.chat.in_progress"
	eventChatCompleted    = "conversation.chat.completed"
	eventChatFailed       = "conversation.chat.failed"
	eventChatRequiresAct  = "conversation.chat.requires_action"
	eventMessageDelta     = "conversation.message.delta"
	eventMessageCompleted = "conversation.message.completed"
	eventError            = "error"
	eventDone             = "done"
)

type sseFrame struct {
	Event string
	Data  []byte
}

type sseParser struct {
	reader *bufio.Reader
}

func newSSEParser(r io.Reader) *sseParser {
	return &sseParser{reader: bufio.NewReader(r)}
}

// Next returns the next dispatched frame, or io.EOF at the end of the
// stream. A trailing frame without a blank line is still returned.
func (p *sseParser) Next() (sseFrame, error) {
	var (
		eventType string
		dataLines []string
	)
	flush := func() (sseFrame, error) {
		if len(dataLines) == 0 && eventType == "" {
			return sseFrame{}, io.EOF
		}
		return sseFrame{Event: eventType, Data: []byte(strings.Join(dataLines, "\n"))}, nil
	}

	for {
		line, err := p.reader.ReadString('\n')
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return sseFrame{}, err
		}
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")

		switch {
		case line == "":
			if len(dataLines) == 0 && eventType == "" {
				if eof {
					return sseFrame{}, io.EOF
				}
				continue
			}
			return flush()
		case strings.HasPrefix(line, ":"):
			// comment
		default:
			field, value := splitSSEField(line)
			switch field {
			case "event":
				eventType = value
			case "data":
				dataLines = append(dataLines, value)
			}
		}
		if eof {
			return flush()
		}
	}
}

func splitSSEField(line string) (field, value string) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimPrefix(line[i+1:], " ")
}

// streamState accumulates what the event stream reveals about a chat.
type streamState struct {
	chatID         string
	conversationID string
	status         chat.Status
	failMsg        string
	completed      []Message
	deltas         map[string]*strings.Builder
	lastDelta      string
}

func (s *streamState) apply(f sseFrame) error {
	switch f.Event {
	case eventChatCreated, eventChatInProgress, eventChatCompleted, eventChatFailed, eventChatRequiresAct:
		var obj chatObject
		if err := json.Unmarshal(f.Data, &obj); err != nil {
			return &chat.Error{Kind: chat.KindProtocol, Op: "stream", Msg: "bad " + f.Event + " payload", Err: err}
		}
		if obj.ID != "" {
			s.chatID = obj.ID
		}
		if obj.ConversationID != "" {
			s.conversationID = obj.ConversationID
		}
		if obj.Status != "" {
			s.status = chat.Status(obj.Status)
		}
		if f.Event == eventChatFailed {
			s.status = chat.StatusFailed
			if obj.LastError != nil {
				s.failMsg = obj.LastError.Msg
			}
		}
	case eventMessageDelta:
		var m Message
		if json.Unmarshal(f.Data, &m) != nil || !m.answer() || m.ContentType == "object_string" {
			return nil
		}
		if s.deltas == nil {
			s.deltas = make(map[string]*strings.Builder)
		}
		b, ok := s.deltas[m.ID]
		if !ok {
			b = &strings.Builder{}
			s.deltas[m.ID] = b
		}
		b.WriteString(m.Content)
		s.lastDelta = m.ID
	case eventMessageCompleted:
		var m Message
		if json.Unmarshal(f.Data, &m) == nil && m.answer() {
			s.completed = append(s.completed, m)
		}
	case eventError:
		var e struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		_ = json.Unmarshal(f.Data, &e)
		return &chat.Error{Kind: chat.KindApplication, Op: "stream", Code: e.Code, Msg: e.Msg}
	}
	return nil
}

func (s *streamState) reply() (string, bool) {
	if text, ok := ReplyText(s.completed); ok {
		return text, true
	}
	if b, ok := s.deltas[s.lastDelta]; ok && strings.TrimSpace(b.String()) != "" {
		return b.String(), true
	}
	return "", false
}

// createStreaming sends a stream=true create request and reads the event
// stream to completion. Only the request context limits how long that takes.
func (c *Client) createStreaming(req *http.Request) (chat.Session, error) {
	const op = "create"
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return chat.Session{}, &chat.Error{Kind: chat.KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	// Errors are reported as a plain JSON envelope instead of a stream.
	if resp.StatusCode < 200 || resp.StatusCode > 299 ||
		!strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return chat.Session{}, &chat.Error{Kind: chat.KindTransport, Op: op, Status: resp.StatusCode, Err: err}
		}
		env, err := decodeEnvelope(op, resp.StatusCode, data)
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

	var st streamState
	parser := newSSEParser(resp.Body)
	for {
		frame, err := parser.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return chat.Session{}, &chat.Error{Kind: chat.KindTransport, Op: "stream", Err: err}
		}
		if err := st.apply(frame); err != nil {
			return chat.Session{}, err
		}
		if frame.Event == eventDone {
			break
		}
	}

	if st.chatID == "" || st.conversationID == "" {
		return chat.Session{}, &chat.Error{Kind: chat.KindProtocol, Op: "stream", Msg: "stream ended without chat id or conversation id"}
	}
	res := &chat.StreamResult{Status: st.status, FailMsg: st.failMsg}
	res.Reply, res.HasReply = st.reply()
	return chat.Session{ChatID: st.chatID, ConversationID: st.conversationID, Streamed: res}, nil
}
