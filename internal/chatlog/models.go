package chatlog

import (
	"errors"
	"time"
	"unicode/utf8"
)

// Sender identifies who authored a message. Serialized as 0/1 for the front-end.
type Sender int

const (
	SenderUser      Sender = 0
	SenderAssistant Sender = 1
)

func (s Sender) String() string {
	if s == SenderAssistant {
		return "assistant"
	}
	return "user"
}

// Message is one immutable entry of a session transcript.
type Message struct {
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a persisted conversation. Messages are in insertion order.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	OwnerID   string    `json:"-"`
	Messages  []Message `json:"logs"`
	CreatedAt time.Time `json:"createdAt"`
}

var ErrSessionNotFound = errors.New("chat session not found")

const titleEllipsis = "..."

// TitleFromMessage derives a session title from the first user message.
// Titles longer than maxLen runes are cut to maxLen and suffixed with "...".
func TitleFromMessage(text string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxLen]) + titleEllipsis
}
