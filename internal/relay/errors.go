package relay

import (
	"errors"
	"fmt"
)

var (
	ErrAuthFailure         = errors.New("authentication failed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamProtocol    = errors.New("upstream protocol error")
	ErrEmptyMessage        = errors.New("empty message")
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrConnectionExists    = errors.New("connection id already registered")

	// ErrTurnInProgress is returned when a connection already has an outstanding turn.
	ErrTurnInProgress = errors.New("turn already in progress")
	ErrDuplicateTurn  = fmt.Errorf("duplicate turn: %w", ErrTurnInProgress)
)

// clientMessage is the human-readable text sent with chat:error for err.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, ErrAuthFailure):
		return "Authentication failed. Please log in again."
	case errors.Is(err, ErrUpstreamUnavailable):
		return "The assistant is temporarily unavailable. Please try again shortly."
	case errors.Is(err, ErrUpstreamProtocol):
		return "The assistant sent a response that could not be read."
	case errors.Is(err, ErrTurnInProgress):
		return "A reply is already being generated. Please wait for it to finish."
	case errors.Is(err, ErrEmptyMessage):
		return "Message is empty."
	case errors.Is(err, ErrUnknownConnection):
		return "Chat connection is not registered."
	default:
		return "Unexpected server error."
	}
}
