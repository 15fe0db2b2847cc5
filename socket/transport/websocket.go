//go:build !js

package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kleeedolinux/websock.go/debug"
)

const (
	TextFrame   = websocket.TextMessage
	BinaryFrame = websocket.BinaryMessage
	PingFrame   = websocket.PingMessage
	PongFrame   = websocket.PongMessage
)

var ErrNotConnected = errors.New("transport: not connected")

type Frame struct {
	Type int
	Data []byte
}

type WebSocketTransport struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	url          string
	dialer       *websocket.Dialer
	headers      http.Header
	subprotocols []string
	readLimit    int64
	readTimeout  time.Duration
	writeTimeout time.Duration
	connected    bool

	netConn   *deadlineConn
	closing   atomic.Bool
	onControl func(Frame)
}

type WebSocketOption func(*WebSocketTransport)

func WithHeaders(headers http.Header) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.headers = headers
	}
}

func WithSubprotocols(protocols []string) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.subprotocols = protocols
	}
}

func WithReadLimit(limit int64) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.readLimit = limit
	}
}

func WithReadTimeout(timeout time.Duration) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.readTimeout = timeout
	}
}

func NewWebSocketTransport(url string, opts ...WebSocketOption) *WebSocketTransport {
	t := &WebSocketTransport{
		url:          url,
		dialer:       websocket.DefaultDialer,
		headers:      make(http.Header),
		writeTimeout: 10 * time.Second,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Connect performs the opening handshake. Reads after a successful handshake
// are bounded by the read timeout; a timeout only re-arms the deadline and is
// never reported, unless the transport is closing.
func (t *WebSocketTransport) Connect(ctx context.Context) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil, nil
	}

	debug.Printf("WebSocketTransport: Connecting to %s", t.url)

	dialer := *t.dialer
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}
	dialer.Subprotocols = t.subprotocols

	netDial := dialer.NetDialContext
	if netDial == nil {
		nd := &net.Dialer{}
		netDial = nd.DialContext
	}
	dialer.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := netDial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		t.netConn = &deadlineConn{Conn: conn, timeout: t.readTimeout, stop: &t.closing}
		return t.netConn, nil
	}

	conn, resp, err := dialer.DialContext(ctx, t.url, t.headers)
	if err != nil {
		debug.Printf("WebSocketTransport: Connection failed: %v", err)
		return resp, err
	}

	debug.Printf("WebSocketTransport: Connected successfully, status %d", resp.StatusCode)

	if t.readLimit > 0 {
		conn.SetReadLimit(t.readLimit)
	}
	conn.SetPingHandler(func(data string) error {
		t.control(Frame{Type: PingFrame, Data: []byte(data)})
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		var ne net.Error
		if err == websocket.ErrCloseSent || errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(data string) error {
		t.control(Frame{Type: PongFrame, Data: []byte(data)})
		return nil
	})

	if t.netConn != nil && t.readTimeout > 0 {
		t.netConn.arm()
	}

	t.conn = conn
	t.connected = true

	return resp, nil
}

func (t *WebSocketTransport) Subprotocol() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return ""
	}
	return t.conn.Subprotocol()
}

func (t *WebSocketTransport) Send(f Frame) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	if t.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			debug.Printf("WebSocketTransport: Error setting write deadline: %v", err)
			return err
		}
	}

	err := conn.WriteMessage(f.Type, f.Data)
	if err != nil {
		debug.Printf("WebSocketTransport: Send error: %v", err)
	}
	return err
}

// SetControlHandler registers fn for ping and pong frames. fn runs on the
// goroutine calling Receive, before Receive returns the next data frame.
// Pings are answered automatically.
func (t *WebSocketTransport) SetControlHandler(fn func(Frame)) {
	t.mu.Lock()
	t.onControl = fn
	t.mu.Unlock()
}

func (t *WebSocketTransport) control(f Frame) {
	t.mu.Lock()
	fn := t.onControl
	t.mu.Unlock()

	if fn != nil {
		fn(f)
	}
}

// Receive blocks for the next text or binary frame. It must be called from a
// single goroutine.
func (t *WebSocketTransport) Receive() (Frame, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return Frame{}, ErrNotConnected
	}

	typ, data, err := conn.ReadMessage()
	if err != nil {
		debug.Printf("WebSocketTransport: Read error: %v", err)
		return Frame{}, err
	}

	return Frame{Type: typ, Data: data}, nil
}

// CloseHandshake sends a normal-closure close frame without closing the
// underlying connection; the peer's reply arrives through Receive.
func (t *WebSocketTransport) CloseHandshake() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	debug.Printf("WebSocketTransport: Sending close frame")

	return conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected || t.conn == nil {
		return nil
	}

	debug.Printf("WebSocketTransport: Closing connection")

	t.closing.Store(true)
	err := t.conn.Close()
	if err != nil {
		debug.Printf("WebSocketTransport: Error closing connection: %v", err)
	}

	t.connected = false
	t.conn = nil

	return err
}

// IsCloseFrame reports whether err is the peer's close frame.
func IsCloseFrame(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce)
}

// IsReadLimit reports whether err comes from an incoming message larger than
// the configured read limit.
func IsReadLimit(err error) bool {
	return errors.Is(err, websocket.ErrReadLimit)
}

// deadlineConn bounds each Read by timeout once armed and swallows the
// resulting timeouts until stop is set.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
	armed   atomic.Bool
	stop    *atomic.Bool
}

func (c *deadlineConn) arm() {
	c.armed.Store(true)
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	for {
		if !c.armed.Load() {
			return c.Conn.Read(p)
		}
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
		n, err := c.Conn.Read(p)
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() && !c.stop.Load() {
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}
