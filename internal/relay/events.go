package relay

import "time"

// Event names exchanged with the browser.
const (
	// server -> client
	EventNameConnected       = "chat:connected"
	EventNameMessageReceived = "chat:message_received"
	EventNameStreamStart     = "chat:stream_start"
	EventNameStreamToken     = "chat:stream_token"
	EventNameStreamEnd       = "chat:stream_end"
	EventNameResponse        = "chat:response"
	EventNameError           = "chat:error"
	EventNameStreamStopped   = "chat:stream_stopped"
	EventNameAuthError       = "auth:error"
	EventNamePong            = "pong"

	// client -> server
	EventNameSendMessage   = "chat:message"
	EventNameStopStreaming = "chat:stop_streaming"
	EventNamePing          = "ping"
)

// ClientEvent is one websocket frame to or from the browser.
type ClientEvent struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

func timestamp(now time.Time) string {
	return now.UTC().Format(time.RFC3339Nano)
}

func connectedEvent(connectionID, chatID string, now time.Time) ClientEvent {
	return ClientEvent{Event: EventNameConnected, Data: map[string]interface{}{
		"chatId":           chatID,
		"socketId":         connectionID,
		"streamingEnabled": true,
		"timestamp":        timestamp(now),
	}}
}

func messageReceivedEvent(text string, now time.Time) ClientEvent {
	return ClientEvent{Event: EventNameMessageReceived, Data: map[string]interface{}{
		"message":   text,
		"timestamp": timestamp(now),
	}}
}

func streamStartEvent(now time.Time) ClientEvent {
	return ClientEvent{Event: EventNameStreamStart, Data: map[string]interface{}{
		"timestamp": timestamp(now),
	}}
}

func streamTokenEvent(token string, now time.Time) ClientEvent {
	return ClientEvent{Event: EventNameStreamToken, Data: map[string]interface{}{
		"token":     token,
		"timestamp": timestamp(now),
	}}
}

func streamEndEvent(reply Reply, now time.Time) ClientEvent {
	return ClientEvent{Event: EventNameStreamEnd, Data: map[string]interface{}{
		"message":   reply.Text,
		"duration":  reply.Elapsed.Milliseconds(),
		"timestamp": timestamp(now),
	}}
}

func responseEvent(text string, now time.Time) ClientEvent {
	return ClientEvent{Event: EventNameResponse, Data: map[string]interface{}{
		"message":   text,
		"timestamp": timestamp(now),
	}}
}

func streamStoppedEvent(partial string, now time.Time) ClientEvent {
	return ClientEvent{Event: EventNameStreamStopped, Data: map[string]interface{}{
		"message":   partial,
		"timestamp": timestamp(now),
	}}
}

func errorEvent(message string, now time.Time) ClientEvent {
	return ClientEvent{Event: EventNameError, Data: map[string]interface{}{
		"error":     message,
		"timestamp": timestamp(now),
	}}
}

func authErrorEvent(now time.Time) ClientEvent {
	return ClientEvent{Event: EventNameAuthError, Data: map[string]interface{}{
		"error":     clientMessage(ErrAuthFailure),
		"timestamp": timestamp(now),
	}}
}

func pongEvent(now time.Time) ClientEvent {
	return ClientEvent{Event: EventNamePong, Data: map[string]interface{}{
		"timestamp": timestamp(now),
	}}
}
