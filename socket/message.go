package socket

import (
	"fmt"
	"unicode/utf8"
)

type MessageKind int

const (
	KindBinary MessageKind = iota + 1
	KindText
	KindPing
	KindPong
	KindUnknown
)

func (k MessageKind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindText:
		return "text"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Unknown carries a description of the payload in Text.
type Message struct {
	Kind MessageKind
	Data []byte
	Text string
}

func Binary(data []byte) Message {
	return Message{Kind: KindBinary, Data: data}
}

func Text(text string) Message {
	return Message{Kind: KindText, Text: text}
}

func Ping(data []byte) Message {
	return Message{Kind: KindPing, Data: data}
}

func Pong(data []byte) Message {
	return Message{Kind: KindPong, Data: data}
}

func Unknown(description string) Message {
	return Message{Kind: KindUnknown, Text: description}
}

func (m Message) Sendable() bool {
	switch m.Kind {
	case KindBinary:
		return true
	case KindText:
		return utf8.ValidString(m.Text)
	default:
		return false
	}
}

func (m Message) String() string {
	switch m.Kind {
	case KindText:
		return fmt.Sprintf("text(%q)", m.Text)
	case KindUnknown:
		return fmt.Sprintf("unknown(%s)", m.Text)
	default:
		return fmt.Sprintf("%s(%d bytes)", m.Kind, len(m.Data))
	}
}

func mustSendable(m Message) {
	if m.Sendable() {
		return
	}
	if m.Kind == KindText {
		panic("websock: cannot send text message with invalid utf-8")
	}
	panic(fmt.Sprintf("websock: cannot send %s message", m.Kind))
}

func textMessage(data []byte) (Message, error) {
	if !utf8.Valid(data) {
		return Message{}, ErrInvalidText
	}
	return Text(string(data)), nil
}
