package coze

import (
	"encoding/json"
	"strings"
)

// Message is one entry of /v3/chat/message/list and of streamed message
// events.
type Message struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	Type        string `json:"type"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	ChatID      string `json:"chat_id"`
}

// answer reports whether m is an assistant answer. Messages without a type
// are treated as answers; tool calls, verbose events and follow-up
// suggestions are not.
func (m Message) answer() bool {
	return m.Role == "assistant" && (m.Type == "" || m.Type == "answer")
}

// Text extracts the displayable text of an assistant message.
//
// For object_string content the first text part is returned and every other
// part (images, files, recall markers) is ignored. Plain text that is itself
// a structured marker such as {"msg_type":"knowledge_recall",...} yields
// nothing.
func (m Message) Text() (string, bool) {
	switch m.ContentType {
	case "object_string":
		return firstTextPart(m.Content)
	default:
		if isStructuredMarker(m.Content) {
			return "", false
		}
		t := strings.TrimSpace(m.Content)
		return m.Content, t != ""
	}
}

func firstTextPart(content string) (string, bool) {
	var parts []struct {
		Type string  `json:"type"`
		Text *string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parts); err != nil {
		return "", false
	}
	for _, p := range parts {
		if p.Type == "text" && p.Text != nil && strings.TrimSpace(*p.Text) != "" {
			return *p.Text, true
		}
	}
	return "", false
}

func isStructuredMarker(content string) bool {
	t := strings.TrimSpace(content)
	if !strings.HasPrefix(t, "{") {
		return false
	}
	var probe struct {
		MsgType *string `json:"msg_type"`
	}
	return json.Unmarshal([]byte(t), &probe) == nil && probe.MsgType != nil
}

// ReplyText scans msgs from the most recent backward and returns the text of
// the first assistant answer that has any. Non-text and marker messages are
// skipped and the scan continues.
func ReplyText(msgs []Message) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if !m.answer() {
			continue
		}
		if text, ok := m.Text(); ok {
			return text, true
		}
	}
	return "", false
}
