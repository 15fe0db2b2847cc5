package transport

type PayloadKind int

const (
	PayloadBinary PayloadKind = iota + 1
	PayloadText
	// PayloadDeferred is binary data that must be loaded asynchronously,
	// such as a browser Blob.
	PayloadDeferred
	PayloadUnknown
)

// Payload is one message as delivered by a host socket. Text holds the text
// of PayloadText and a description for PayloadUnknown.
type Payload struct {
	Kind PayloadKind
	Data []byte
	Text string
	Load func(done func(data []byte, err error))
}

type HostCallbacks struct {
	OnOpen    func()
	OnMessage func(Payload)
	OnError   func(message string)
	OnClose   func()
}

// HostSocket is a socket object owned by a single-threaded host runtime.
// Callbacks run on the host event loop, one at a time. Writes are buffered
// by the host.
type HostSocket interface {
	Register(HostCallbacks)

	SendText(text string) error

	SendBinary(data []byte) error

	Close() error

	// Release drops the registered callbacks after the socket closed.
	Release()
}
