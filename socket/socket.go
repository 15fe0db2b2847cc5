package socket

import (
	"errors"
	"fmt"
)

type EventType string

const (
	EventOpened  EventType = "opened"
	EventMessage EventType = "message"
	EventError   EventType = "error"
	EventClosed  EventType = "closed"
)

type Event struct {
	Type    EventType
	Message Message
	Err     error
}

func Opened() Event {
	return Event{Type: EventOpened}
}

func Received(msg Message) Event {
	return Event{Type: EventMessage, Message: msg}
}

func Failed(err error) Event {
	return Event{Type: EventError, Err: err}
}

func Closed() Event {
	return Event{Type: EventClosed}
}

func (e Event) String() string {
	switch e.Type {
	case EventMessage:
		return fmt.Sprintf("message(%s)", e.Message)
	case EventError:
		return fmt.Sprintf("error(%v)", e.Err)
	default:
		return string(e.Type)
	}
}

type Directive int

const (
	Continue Directive = iota
	Break
)

// EventHandler is called synchronously by the driver for every event, never
// concurrently with itself for the same connection.
type EventHandler func(Event) Directive

var (
	ErrMalformedURL      = errors.New("websock: malformed url")
	ErrUnsupportedScheme = errors.New("websock: url scheme must be ws or wss")
	ErrHostUnavailable   = errors.New("websock: host websocket api unavailable")
	ErrInvalidText       = errors.New("websock: text frame is not valid utf-8")
)

type ConnectError struct {
	Op  string
	URL string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("websock: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
