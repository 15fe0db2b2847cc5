package socket

import (
	"errors"
	"fmt"

	"github.com/kleeedolinux/websock.go/debug"
	"github.com/kleeedolinux/websock.go/socket/transport"
)

// hostedDriver bridges a callback-driven host socket to an EventHandler.
// The host invokes callbacks one at a time on its event loop, so the driver
// keeps no locks.
//
// Events leave in the order the host produced them: a blob still loading
// holds back everything behind it, Closed included.
type hostedDriver struct {
	id      string
	socket  transport.HostSocket
	handler EventHandler

	pending  []*hostedEvent
	flushing bool
	stopped  bool
	closing  bool
	closed   bool
}

type hostedEvent struct {
	event Event
	ready bool
}

func startHosted(id string, s transport.HostSocket, handler EventHandler) *Sender {
	if handler == nil {
		handler = func(Event) Directive { return Continue }
	}

	d := &hostedDriver{id: id, socket: s, handler: handler}
	s.Register(transport.HostCallbacks{
		OnOpen:    d.onOpen,
		OnMessage: d.onMessage,
		OnError:   d.onError,
		OnClose:   d.onClose,
	})

	return newSender(id, hostOutlet{id: id, socket: s})
}

func (d *hostedDriver) onOpen() {
	d.push(Opened())
}

func (d *hostedDriver) onMessage(p transport.Payload) {
	if d.closed {
		return
	}

	switch p.Kind {
	case transport.PayloadBinary:
		d.push(Received(Binary(p.Data)))
	case transport.PayloadText:
		d.push(Received(Text(p.Text)))
	case transport.PayloadDeferred:
		slot := &hostedEvent{}
		d.pending = append(d.pending, slot)
		p.Load(func(data []byte, err error) {
			if d.closed {
				return
			}
			slot.event = Received(Binary(data))
			if err != nil {
				slot.event = Failed(fmt.Errorf("failed to read binary blob: %w", err))
			}
			slot.ready = true
			d.flush()
		})
	default:
		debug.Printf("Connection %s: Unknown message received: %s", d.id, p.Text)
		d.push(Received(Unknown(p.Text)))
	}
}

func (d *hostedDriver) onError(message string) {
	debug.Printf("Connection %s: Error event: %s", d.id, message)
	d.push(Failed(errors.New(message)))
}

func (d *hostedDriver) onClose() {
	if d.closing {
		return
	}
	d.closing = true
	d.push(Closed())
}

func (d *hostedDriver) push(e Event) {
	if d.closed {
		return
	}
	d.pending = append(d.pending, &hostedEvent{event: e, ready: true})
	d.flush()
}

func (d *hostedDriver) flush() {
	if d.flushing {
		return
	}
	d.flushing = true
	defer func() { d.flushing = false }()

	for len(d.pending) > 0 && d.pending[0].ready {
		e := d.pending[0].event
		d.pending[0] = nil
		d.pending = d.pending[1:]

		d.emit(e)
		if e.Type == EventClosed {
			d.closed = true
			d.pending = nil
			d.socket.Release()
			return
		}
	}
}

func (d *hostedDriver) emit(e Event) {
	if d.stopped || d.closed {
		return
	}
	if d.handler(e) == Break {
		d.stopped = true
		debug.Printf("Connection %s: Closing connection due to Break", d.id)
		if err := d.socket.Close(); err != nil {
			debug.Printf("Connection %s: Failed to close connection: %v", d.id, err)
		}
	}
}

type hostOutlet struct {
	id     string
	socket transport.HostSocket
}

func (o hostOutlet) send(msg Message) {
	var err error
	switch msg.Kind {
	case KindBinary:
		err = o.socket.SendBinary(msg.Data)
	case KindText:
		err = o.socket.SendText(msg.Text)
	}
	if err != nil {
		debug.Printf("Sender %s: Failed to send: %v", o.id, err)
	}
}

func (o hostOutlet) close() error {
	return o.socket.Close()
}
