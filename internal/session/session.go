package session

import (
	"fmt"
	"time"
)

// Role identifies who authored a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Feedback is the like/dislike annotation of an assistant turn.
// The zero value means no feedback.
type Feedback string

const (
	FeedbackNone     Feedback = ""
	FeedbackLiked    Feedback = "liked"
	FeedbackDisliked Feedback = "disliked"
)

// ParseFeedback maps a wire value onto a Feedback. Unknown values are
// treated as none.
func ParseFeedback(s string) Feedback {
	switch Feedback(s) {
	case FeedbackLiked, FeedbackDisliked:
		return Feedback(s)
	default:
		return FeedbackNone
	}
}

// Valid reports whether f is a value a user can request.
func (f Feedback) Valid() bool {
	return f == FeedbackLiked || f == FeedbackDisliked
}

func (f Feedback) String() string {
	if f == FeedbackNone {
		return "none"
	}
	return string(f)
}

// Turn is one displayed message
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Feedback  Feedback  `json:"feedback,omitempty"`
}

// Exchange is a stored query/response pair returned by the history endpoint
type Exchange struct {
	ID        string
	Query     string
	Response  string
	Timestamp time.Time
	Feedback  Feedback
}

// UserTurnID and AssistantTurnID derive display ids from an exchange id.
func UserTurnID(exchangeID string) string {
	return fmt.Sprintf("user-%s", exchangeID)
}

func AssistantTurnID(exchangeID string) string {
	return fmt.Sprintf("assistant-%s", exchangeID)
}

// Reply is the result of a query call
type Reply struct {
	SessionID string // empty when the service did not report one
	MessageID string // stored exchange id, if reported
	Text      string
}

// ChatSummary is one entry of the user's conversation list
type ChatSummary struct {
	ID   string
	Name string
}
