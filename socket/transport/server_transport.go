//go:build !js

package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kleeedolinux/websock.go/debug"
)

type WebSocketServerTransport struct {
	id           string
	conn         *websocket.Conn
	sendCh       chan Frame
	closeCh      chan struct{}
	writeWg      sync.WaitGroup
	writeTimeout time.Duration
	mu           sync.Mutex
	closed       bool
}

type WebSocketServerConfig struct {
	WriteTimeout time.Duration
	ReadLimit    int64
	BufferSize   int
}

func DefaultWebSocketServerConfig() WebSocketServerConfig {
	return WebSocketServerConfig{
		WriteTimeout: 10 * time.Second,
		ReadLimit:    64 << 20,
		BufferSize:   100,
	}
}

func NewWebSocketServerTransport(id string, conn *websocket.Conn, config WebSocketServerConfig) *WebSocketServerTransport {
	t := &WebSocketServerTransport{
		id:           id,
		conn:         conn,
		sendCh:       make(chan Frame, config.BufferSize),
		closeCh:      make(chan struct{}),
		writeTimeout: config.WriteTimeout,
	}

	if config.ReadLimit > 0 {
		conn.SetReadLimit(config.ReadLimit)
	}
	// The close reply is written by Close, behind the queued frames.
	conn.SetCloseHandler(func(int, string) error {
		return nil
	})

	t.writeWg.Add(1)
	go t.writePump()

	return t
}

func (t *WebSocketServerTransport) writePump() {
	defer t.writeWg.Done()

	for {
		select {
		case <-t.closeCh:
			t.drain()
			return
		case f := <-t.sendCh:
			if err := t.write(f); err != nil {
				go t.Close()
				return
			}
		}
	}
}

// drain writes whatever was queued before Close.
func (t *WebSocketServerTransport) drain() {
	for {
		select {
		case f := <-t.sendCh:
			if err := t.write(f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (t *WebSocketServerTransport) write(f Frame) error {
	if t.writeTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}

	err := t.conn.WriteMessage(f.Type, f.Data)
	if err != nil {
		debug.Printf("WebSocketServerTransport %s: Write error: %v", t.id, err)
	}
	return err
}

func (t *WebSocketServerTransport) Read() (Frame, error) {
	typ, data, err := t.conn.ReadMessage()
	if err != nil {
		debug.Printf("WebSocketServerTransport %s: Error reading message: %v", t.id, err)
		return Frame{}, err
	}

	debug.Printf("WebSocketServerTransport %s: Received %d bytes", t.id, len(data))
	return Frame{Type: typ, Data: data}, nil
}

// Write queues f, waiting for room in the send buffer.
func (t *WebSocketServerTransport) Write(f Frame) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	if closed {
		debug.Printf("WebSocketServerTransport %s: Attempted to write to closed transport", t.id)
		return websocket.ErrCloseSent
	}

	select {
	case t.sendCh <- f:
		return nil
	case <-t.closeCh:
		return websocket.ErrCloseSent
	}
}

func (t *WebSocketServerTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}

	t.closed = true
	close(t.closeCh)
	t.mu.Unlock()

	t.writeWg.Wait()

	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)

	return t.conn.Close()
}

func (t *WebSocketServerTransport) ID() string {
	return t.id
}

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type EchoConfig struct {
	Server WebSocketServerConfig

	// OnFrame is called for every frame read, before it is echoed.
	OnFrame func(id string, f Frame)

	// OnConnect and OnDisconnect observe the connection lifecycle.
	OnConnect    func(id string)
	OnDisconnect func(id string, err error)

	// NewID names a connection; defaults to the remote address.
	NewID func(r *http.Request) string
}

// EchoHandler upgrades requests and writes every text or binary frame back
// to its sender. Control frames are not echoed.
func EchoHandler(config EchoConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			debug.Printf("EchoHandler: Upgrade failed: %v", err)
			return
		}

		id := r.RemoteAddr
		if config.NewID != nil {
			id = config.NewID(r)
		}

		t := NewWebSocketServerTransport(id, conn, config.Server)
		defer t.Close()

		if config.OnConnect != nil {
			config.OnConnect(t.ID())
		}

		for {
			f, err := t.Read()
			if err != nil {
				if config.OnDisconnect != nil {
					config.OnDisconnect(t.ID(), err)
				}
				return
			}

			if config.OnFrame != nil {
				config.OnFrame(t.ID(), f)
			}

			if f.Type != TextFrame && f.Type != BinaryFrame {
				continue
			}
			if err := t.Write(f); err != nil {
				return
			}
		}
	})
}
