//go:build !js

package socket

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/kleeedolinux/websock.go/debug"
	"github.com/kleeedolinux/websock.go/socket/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var closeGracePeriod = time.Second

var tracer = otel.Tracer("github.com/kleeedolinux/websock.go/socket")

func ConnectHandler(rawURL string, opts Options, handler EventHandler) (*Sender, error) {
	id := uuid.NewString()

	t, err := dial(context.Background(), id, rawURL, opts)
	if err != nil {
		return nil, err
	}

	outgoing := newFIFO[Message]()
	d := newDriver(id, t, handler, outgoing)
	go d.runAndReport()

	return newSender(id, queueOutlet{outgoing}), nil
}

// ConnectBlocking runs a connection on the calling goroutine until it ends.
// Messages are read from outgoing; closing outgoing closes the connection and
// a nil channel never does. All errors, including handshake failures, are
// returned instead of being reported to handler.
func ConnectBlocking(rawURL string, opts Options, handler EventHandler, outgoing <-chan Message) error {
	id := uuid.NewString()

	t, err := dial(context.Background(), id, rawURL, opts)
	if err != nil {
		return err
	}

	q := newFIFO[Message]()
	d := newDriver(id, t, handler, q)

	go func() {
		for {
			select {
			case msg, ok := <-outgoing:
				if !ok {
					q.Close()
					return
				}
				q.Push(msg)
			case <-d.done:
				return
			}
		}
	}()

	return d.run()
}

func ReceiveBlocking(rawURL string, opts Options, handler EventHandler) error {
	return ConnectBlocking(rawURL, opts, handler, nil)
}

func dial(ctx context.Context, id, rawURL string, opts Options) (*transport.WebSocketTransport, error) {
	if err := opts.Validate(); err != nil {
		return nil, &ConnectError{Op: "options", URL: rawURL, Err: err}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &ConnectError{Op: "parse", URL: rawURL, Err: fmt.Errorf("%w: %v", ErrMalformedURL, err)}
	}
	if u.Host == "" {
		return nil, &ConnectError{Op: "parse", URL: rawURL, Err: fmt.Errorf("%w: missing host", ErrMalformedURL)}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, &ConnectError{Op: "parse", URL: rawURL, Err: ErrUnsupportedScheme}
	}

	ctx, span := tracer.Start(ctx, "websock.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("websock.conn_id", id),
			attribute.String("server.address", u.Host),
		),
	)
	defer span.End()

	t := transport.NewWebSocketTransport(rawURL,
		transport.WithHeaders(opts.header()),
		transport.WithSubprotocols(opts.Subprotocols),
		transport.WithReadLimit(opts.MaxIncomingFrameSize),
		transport.WithReadTimeout(opts.ReadTimeout),
	)

	resp, err := t.Connect(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observeConnect(false)
		return nil, &ConnectError{Op: "dial", URL: rawURL, Err: err}
	}

	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.String("websock.subprotocol", t.Subprotocol()),
	)
	observeConnect(true)

	if debug.Enabled() {
		debug.Logger().Debug("websocket connected",
			zap.String("conn_id", id),
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode),
			zap.Any("headers", resp.Header),
		)
	}

	return t, nil
}

type queueOutlet struct {
	q *fifo[Message]
}

func (o queueOutlet) send(msg Message) {
	o.q.Push(msg)
}

func (o queueOutlet) close() error {
	o.q.Close()
	return nil
}

type readResult struct {
	frame transport.Frame
	err   error
}

// driver owns one native connection. Only the goroutine in run calls the
// handler; readLoop feeds it frames in arrival order.
type driver struct {
	id        string
	transport *transport.WebSocketTransport
	handler   EventHandler
	outgoing  *fifo[Message]
	incoming  chan readResult
	done      chan struct{}
}

func newDriver(id string, t *transport.WebSocketTransport, handler EventHandler, outgoing *fifo[Message]) *driver {
	if handler == nil {
		handler = func(Event) Directive { return Continue }
	}
	d := &driver{
		id:        id,
		transport: t,
		handler:   handler,
		outgoing:  outgoing,
		incoming:  make(chan readResult),
		done:      make(chan struct{}),
	}
	t.SetControlHandler(func(f transport.Frame) {
		d.deliver(readResult{frame: f})
	})
	return d
}

func (d *driver) runAndReport() {
	if err := d.run(); err != nil {
		debug.Printf("Connection %s: Failed: %v", d.id, err)
		d.emit(Failed(err))
		return
	}
	debug.Printf("Connection %s: Closed", d.id)
}

func (d *driver) run() error {
	defer close(d.done)
	defer d.transport.Close()
	defer d.outgoing.Discard()

	if d.emit(Opened()) == Break {
		return d.closeOnBreak()
	}

	go d.readLoop()

	outgoing := d.outgoing.Ready()
	var grace <-chan time.Time

	for {
		select {
		case <-outgoing:
			msg, state := d.outgoing.TryPop()
			switch state {
			case popItem:
				if err := d.write(msg); err != nil {
					return fmt.Errorf("send: %w", err)
				}
			case popClosed:
				debug.Printf("Connection %s: Sender closed - closing connection", d.id)
				outgoing = nil
				if err := d.transport.CloseHandshake(); err != nil {
					debug.Printf("Connection %s: Close handshake failed: %v", d.id, err)
					d.emit(Closed())
					return nil
				}
				timer := time.NewTimer(closeGracePeriod)
				defer timer.Stop()
				grace = timer.C
			}

		case r := <-d.incoming:
			if r.err != nil {
				if grace != nil || transport.IsCloseFrame(r.err) {
					debug.Printf("Connection %s: Close received: %v", d.id, r.err)
					d.emit(Closed())
					return nil
				}
				return fmt.Errorf("read: %w", r.err)
			}

			msg, err := frameMessage(r.frame)
			if err != nil {
				return fmt.Errorf("read: %w", err)
			}
			observeReceived(msg.Kind)
			if d.emit(Received(msg)) == Break {
				return d.closeOnBreak()
			}

		case <-grace:
			debug.Printf("Connection %s: Peer did not answer close frame", d.id)
			d.emit(Closed())
			return nil
		}
	}
}

func (d *driver) readLoop() {
	for {
		f, err := d.transport.Receive()
		if !d.deliver(readResult{frame: f, err: err}) || err != nil {
			return
		}
	}
}

func (d *driver) deliver(r readResult) bool {
	select {
	case d.incoming <- r:
		return true
	case <-d.done:
		return false
	}
}

func (d *driver) emit(e Event) Directive {
	observeEvent(e.Type)
	return d.handler(e)
}

func (d *driver) write(msg Message) error {
	mustSendable(msg)

	f := transport.Frame{Type: transport.BinaryFrame, Data: msg.Data}
	if msg.Kind == KindText {
		f = transport.Frame{Type: transport.TextFrame, Data: []byte(msg.Text)}
	}
	if err := d.transport.Send(f); err != nil {
		return err
	}
	observeSent(msg.Kind)
	return nil
}

func (d *driver) closeOnBreak() error {
	debug.Printf("Connection %s: Closing connection due to Break", d.id)
	if dropped := d.outgoing.Discard(); dropped > 0 {
		debug.Printf("Connection %s: Dropped %d unsent messages", d.id, dropped)
	}
	if err := d.transport.CloseHandshake(); err != nil {
		debug.Printf("Connection %s: Failed to close connection: %v", d.id, err)
	}
	return nil
}

func frameMessage(f transport.Frame) (Message, error) {
	switch f.Type {
	case transport.TextFrame:
		return textMessage(f.Data)
	case transport.BinaryFrame:
		return Binary(f.Data), nil
	case transport.PingFrame:
		return Ping(f.Data), nil
	case transport.PongFrame:
		return Pong(f.Data), nil
	default:
		return Unknown(fmt.Sprintf("frame type %d", f.Type)), nil
	}
}
