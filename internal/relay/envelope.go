package relay

import (
	"encoding/json"
	"time"
)

// EventKind tags an inbound upstream message.
type EventKind int

const (
	EventFragment EventKind = iota
	EventResult
	EventError
	// EventUnrecognized is valid JSON with no known shape.
	EventUnrecognized
	// EventProtocolError is a message that is not valid JSON; it has no client id.
	EventProtocolError
)

func (k EventKind) String() string {
	switch k {
	case EventFragment:
		return "fragment"
	case EventResult:
		return "result"
	case EventError:
		return "error"
	case EventUnrecognized:
		return "unrecognized"
	case EventProtocolError:
		return "protocol_error"
	default:
		return "unknown"
	}
}

// Event is one message received from the inference server.
type Event struct {
	Kind     EventKind
	ClientID string
	Content  string

	// Legacy marks a non-streaming {message, clientId} completion.
	Legacy bool
}

const (
	upstreamTypeQuestion  = "question"
	upstreamTypeToken     = "token"
	upstreamTypeStreamEnd = "stream_end"
	upstreamTypeError     = "error"
)

type questionEnvelope struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	ClientID  string `json:"clientId"`
	Timestamp string `json:"timestamp"`
}

type inboundEnvelope struct {
	Type     string  `json:"type"`
	Content  string  `json:"content"`
	ClientID string  `json:"clientId"`
	Message  *string `json:"message"`
}

func encodeQuestion(connectionID, text string, now time.Time) ([]byte, error) {
	return json.Marshal(questionEnvelope{
		Type:      upstreamTypeQuestion,
		Content:   text,
		ClientID:  connectionID,
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}

// ParseEvent decodes one upstream message.
func ParseEvent(data []byte) Event {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{Kind: EventProtocolError}
	}

	ev := Event{ClientID: env.ClientID, Content: env.Content}
	switch env.Type {
	case upstreamTypeToken:
		ev.Kind = EventFragment
	case upstreamTypeStreamEnd:
		ev.Kind = EventResult
	case upstreamTypeError:
		ev.Kind = EventError
	default:
		if env.Message != nil && *env.Message != "" {
			ev.Kind = EventResult
			ev.Content = *env.Message
			ev.Legacy = true
		} else {
			ev.Kind = EventUnrecognized
		}
	}
	return ev
}
