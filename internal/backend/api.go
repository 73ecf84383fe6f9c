package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"AssistChat/internal/session"
)

// ID is an identifier issued by the conversation service. The service
// may encode it as a JSON string or a JSON number; it is always sent
// back as a string.
type ID string

// UnmarshalJSON accepts strings, numbers and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", string(data), err)
	}
	*id = ID(n.String())
	return nil
}

// QueryRequest represents the request body of POST /query
type QueryRequest struct {
	Query  string `json:"query"`
	ChatID ID     `json:"chat_id,omitempty"`
}

// QueryResponse represents the response of POST /query
type QueryResponse struct {
	ChatID    ID              `json:"chat_id,omitempty"`
	MessageID ID              `json:"message_id,omitempty"`
	Response  json.RawMessage `json:"response"`
}

// HistoryResponse represents the response of GET /history/{id}
type HistoryResponse struct {
	Conversations []ConversationRecord `json:"conversations"`
}

// ConversationRecord is one stored exchange
type ConversationRecord struct {
	ID        ID              `json:"id"`
	Query     json.RawMessage `json:"query"`
	Response  json.RawMessage `json:"response"`
	Category  string          `json:"category,omitempty"`
	Timestamp string          `json:"timestamp"`
	Feedback  *string         `json:"feedback,omitempty"`
}

// FeedbackRequest represents the request body of POST /feedback.
// A nil Feedback clears the annotation.
type FeedbackRequest struct {
	MessageID string  `json:"message_id"`
	ChatID    ID      `json:"chat_id"`
	Feedback  *string `json:"feedback"`
}

// ChatsResponse represents the response of GET /user_chats
type ChatsResponse struct {
	Chats []struct {
		ChatID   ID     `json:"chat_id"`
		ChatName string `json:"chat_name"`
	} `json:"chats"`
}

// payloadText renders a response payload as text. JSON strings are
// decoded, anything else is kept as its compact JSON form.
func payloadText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTimestamp returns the zero time when no known layout matches.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(0, int64(secs*float64(time.Second)))
	}
	return time.Time{}
}

func (r ConversationRecord) exchange() session.Exchange {
	ex := session.Exchange{
		ID:        string(r.ID),
		Query:     payloadText(r.Query),
		Response:  payloadText(r.Response),
		Timestamp: parseTimestamp(r.Timestamp),
	}
	if r.Feedback != nil {
		ex.Feedback = session.ParseFeedback(*r.Feedback)
	}
	return ex
}
