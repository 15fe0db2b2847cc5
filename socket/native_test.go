//go:build !js

package socket

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kleeedolinux/websock.go/socket/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newEchoServer(t *testing.T, hooks transport.EchoConfig) *httptest.Server {
	t.Helper()

	hooks.Server = transport.DefaultWebSocketServerConfig()
	hooks.Server.BufferSize = 4096
	srv := httptest.NewServer(transport.EchoHandler(hooks))
	t.Cleanup(srv.Close)
	return srv
}

func newServer(t *testing.T, handler func(*websocket.Conn, *http.Request)) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{
		Subprotocols: []string{"chat"},
		CheckOrigin:  func(*http.Request) bool { return true },
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// collect polls r until it holds at least n events.
func collect(t *testing.T, r *Receiver, n int) []Event {
	t.Helper()

	var events []Event
	require.Eventually(t, func() bool {
		events = append(events, drain(r)...)
		return len(events) >= n
	}, waitFor, 5*time.Millisecond, "got %v", events)
	return events
}

// quiet asserts no further events arrive for a short while.
func quiet(t *testing.T, r *Receiver) {
	t.Helper()

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, drain(r))
}

func TestEchoTextRoundTrip(t *testing.T) {
	srv := newEchoServer(t, transport.EchoConfig{})

	sender, receiver, err := Connect(wsURL(srv), DefaultOptions(), nil)
	require.NoError(t, err)
	defer sender.Close()

	sender.Send(Text("ping"))

	events := collect(t, receiver, 2)
	assert.Equal(t, []Event{Opened(), Received(Text("ping"))}, events)
}

func TestOutgoingMessagesKeepSubmissionOrder(t *testing.T) {
	srv := newEchoServer(t, transport.EchoConfig{})

	sender, receiver, err := Dial(wsURL(srv))
	require.NoError(t, err)
	defer sender.Close()

	const n = 200
	for i := 0; i < n; i++ {
		sender.Send(Text(fmt.Sprintf("msg-%03d", i)))
	}

	events := collect(t, receiver, n+1)
	require.Equal(t, Opened(), events[0])
	for i := 0; i < n; i++ {
		assert.Equal(t, Received(Text(fmt.Sprintf("msg-%03d", i))), events[i+1])
	}
}

func TestBinaryRoundTripAtFrameLimit(t *testing.T) {
	srv := newEchoServer(t, transport.EchoConfig{})

	payload := bytes.Repeat([]byte{0xab}, 1024)
	sender, receiver, err := Connect(wsURL(srv), NewOptions(WithMaxIncomingFrameSize(1024)), nil)
	require.NoError(t, err)
	defer sender.Close()

	sender.Send(Binary(payload))

	events := collect(t, receiver, 2)
	assert.Equal(t, Received(Binary(payload)), events[1])
}

func TestOversizedFrameFailsConnection(t *testing.T) {
	srv := newEchoServer(t, transport.EchoConfig{})

	sender, receiver, err := Connect(wsURL(srv), NewOptions(WithMaxIncomingFrameSize(1024)), nil)
	require.NoError(t, err)
	defer sender.Close()

	sender.Send(Binary(make([]byte, 2048)))

	events := collect(t, receiver, 2)
	require.Len(t, events, 2)
	assert.Equal(t, Opened(), events[0])
	assert.Equal(t, EventError, events[1].Type)
	assert.True(t, transport.IsReadLimit(events[1].Err), "unexpected error %v", events[1].Err)
	quiet(t, receiver)
}

func TestConnectToClosedPortFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	var calls atomic.Int32
	sender, receiver, err := Connect("ws://"+addr, DefaultOptions(), func(Event) Directive {
		calls.Add(1)
		return Continue
	})

	require.Error(t, err)
	var ce *ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "dial", ce.Op)
	assert.Nil(t, sender)
	assert.Nil(t, receiver)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestConnectRejectsBadURLs(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want error
	}{
		{name: "unparsable", url: "ws://[::1", want: ErrMalformedURL},
		{name: "missing host", url: "ws:///path", want: ErrMalformedURL},
		{name: "http scheme", url: "http://example.com", want: ErrUnsupportedScheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Dial(tt.url)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBreakOnFirstMessageClosesConnection(t *testing.T) {
	disconnected := make(chan struct{})
	srv := newEchoServer(t, transport.EchoConfig{
		OnDisconnect: func(string, error) { close(disconnected) },
	})

	var mu sync.Mutex
	var seen []Event
	sender, receiver, err := Connect(wsURL(srv), DefaultOptions(), func(e Event) Directive {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e)
		if e.Type == EventMessage {
			return Break
		}
		return Continue
	})
	require.NoError(t, err)

	sender.Send(Text("one"))

	select {
	case <-disconnected:
	case <-time.After(waitFor):
		t.Fatal("server never saw the connection close")
	}

	sender.Send(Text("two"))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, []Event{Opened(), Received(Text("one"))}, seen)
	mu.Unlock()
	assert.Equal(t, []Event{Opened()}, drain(receiver))
}

func TestSenderCloseEndsWithClosedEvent(t *testing.T) {
	srv := newEchoServer(t, transport.EchoConfig{})

	sender, receiver, err := Dial(wsURL(srv))
	require.NoError(t, err)
	collect(t, receiver, 1)

	for i := 0; i < 50; i++ {
		sender.Send(Binary(make([]byte, 4096)))
	}
	require.NoError(t, sender.Close())
	sender.Send(Text("no-op"))

	var events []Event
	require.Eventually(t, func() bool {
		events = append(events, drain(receiver)...)
		return len(events) > 0 && events[len(events)-1].Type == EventClosed
	}, waitFor, 5*time.Millisecond)

	for _, e := range events {
		assert.NotEqual(t, EventError, e.Type, "unexpected %v", e)
	}
	quiet(t, receiver)
}

func TestCloseAfterBurstReceivesEveryEcho(t *testing.T) {
	srv := httptest.NewServer(transport.EchoHandler(transport.EchoConfig{
		Server: transport.DefaultWebSocketServerConfig(),
	}))
	t.Cleanup(srv.Close)

	sender, receiver, err := Dial(wsURL(srv))
	require.NoError(t, err)

	const n = 500
	for i := 0; i < n; i++ {
		sender.Send(Text("x"))
	}
	require.NoError(t, sender.Close())

	var events []Event
	require.Eventually(t, func() bool {
		events = append(events, drain(receiver)...)
		return len(events) > 0 && events[len(events)-1].Type == EventClosed
	}, waitFor, 5*time.Millisecond)

	messages := 0
	for _, e := range events {
		require.NotEqual(t, EventError, e.Type, "unexpected %v", e)
		if e.Type == EventMessage {
			messages++
		}
	}
	assert.Equal(t, n, messages)
}

func TestDroppedSenderClosesConnection(t *testing.T) {
	srv := newEchoServer(t, transport.EchoConfig{})

	receiver := func() *Receiver {
		sender, receiver, err := Dial(wsURL(srv))
		require.NoError(t, err)
		for i := 0; i < 100; i++ {
			sender.Send(Binary(make([]byte, 1024)))
		}
		return receiver
	}()

	var events []Event
	require.Eventually(t, func() bool {
		runtime.GC()
		events = append(events, drain(receiver)...)
		return len(events) > 0 && events[len(events)-1].Type == EventClosed
	}, waitFor, 10*time.Millisecond)

	require.Equal(t, Opened(), events[0])
	for _, e := range events {
		assert.NotEqual(t, EventError, e.Type, "unexpected %v", e)
	}
	quiet(t, receiver)
}

func TestPeerCloseEmitsClosedOnce(t *testing.T) {
	srv := newServer(t, func(conn *websocket.Conn, _ *http.Request) {
		conn.WriteMessage(websocket.TextMessage, []byte("bye"))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
			time.Now().Add(time.Second))
		conn.ReadMessage()
	})

	_, receiver, err := Dial(wsURL(srv))
	require.NoError(t, err)

	events := collect(t, receiver, 3)
	assert.Equal(t, []Event{Opened(), Received(Text("bye")), Closed()}, events)
	quiet(t, receiver)
}

func TestHeadersAndSubprotocols(t *testing.T) {
	srv := newServer(t, func(conn *websocket.Conn, r *http.Request) {
		reply := r.Header.Get("X-Token") + "/" + conn.Subprotocol()
		conn.WriteMessage(websocket.TextMessage, []byte(reply))
		conn.ReadMessage()
	})

	opts := NewOptions(WithHeader("X-Token", "secret"), WithSubprotocols("chat"))
	sender, receiver, err := Connect(wsURL(srv), opts, nil)
	require.NoError(t, err)
	defer sender.Close()

	events := collect(t, receiver, 2)
	assert.Equal(t, Received(Text("secret/chat")), events[1])
}

func TestReadTimeoutIsNotAnError(t *testing.T) {
	srv := newServer(t, func(conn *websocket.Conn, _ *http.Request) {
		time.Sleep(150 * time.Millisecond)
		conn.WriteMessage(websocket.TextMessage, []byte("late"))
		conn.ReadMessage()
	})

	sender, receiver, err := Connect(wsURL(srv), NewOptions(WithReadTimeout(10*time.Millisecond)), nil)
	require.NoError(t, err)
	defer sender.Close()

	events := collect(t, receiver, 2)
	assert.Equal(t, []Event{Opened(), Received(Text("late"))}, events)
}

func TestInvalidUTF8TextFailsConnection(t *testing.T) {
	srv := newServer(t, func(conn *websocket.Conn, _ *http.Request) {
		conn.WriteMessage(websocket.TextMessage, []byte{0xff, 0xfe, 0xfd})
		conn.ReadMessage()
	})

	sender, receiver, err := Dial(wsURL(srv))
	require.NoError(t, err)
	defer sender.Close()

	events := collect(t, receiver, 2)
	assert.Equal(t, EventError, events[1].Type)
	assert.ErrorIs(t, events[1].Err, ErrInvalidText)
}

func TestPingIsSurfacedAndAnswered(t *testing.T) {
	pong := make(chan string, 1)
	srv := newServer(t, func(conn *websocket.Conn, _ *http.Request) {
		conn.SetPongHandler(func(data string) error {
			pong <- data
			return nil
		})
		conn.WriteControl(websocket.PingMessage, []byte("hb"), time.Now().Add(time.Second))
		conn.ReadMessage()
	})

	sender, receiver, err := Dial(wsURL(srv))
	require.NoError(t, err)
	defer sender.Close()

	events := collect(t, receiver, 2)
	assert.Equal(t, Received(Ping([]byte("hb"))), events[1])

	select {
	case data := <-pong:
		assert.Equal(t, "hb", data)
	case <-time.After(waitFor):
		t.Fatal("no pong")
	}
}

func TestReceiveOnlyKeepsConnectionOpen(t *testing.T) {
	srv := newServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for i := 0; i < 3; i++ {
			conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprint(i)))
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.ReadMessage()
	})

	receiver, err := Receive(wsURL(srv), DefaultOptions(), nil)
	require.NoError(t, err)

	events := collect(t, receiver, 5)
	assert.Equal(t, []Event{
		Opened(),
		Received(Text("0")),
		Received(Text("1")),
		Received(Text("2")),
		Closed(),
	}, events)
}

func TestConnectWithWakeUp(t *testing.T) {
	srv := newEchoServer(t, transport.EchoConfig{})

	var wakes atomic.Int32
	sender, receiver, err := ConnectWithWakeUp(wsURL(srv), DefaultOptions(), func() {
		wakes.Add(1)
	})
	require.NoError(t, err)
	defer sender.Close()

	sender.Send(Text("x"))
	collect(t, receiver, 2)
	assert.GreaterOrEqual(t, wakes.Load(), int32(2))
}

func TestConnectBlocking(t *testing.T) {
	srv := newEchoServer(t, transport.EchoConfig{})

	var mu sync.Mutex
	var seen []Event
	outgoing := make(chan Message, 1)
	handler := func(e Event) Directive {
		mu.Lock()
		seen = append(seen, e)
		mu.Unlock()
		if e.Type == EventMessage {
			close(outgoing)
		}
		return Continue
	}

	outgoing <- Text("hello")
	err := ConnectBlocking(wsURL(srv), DefaultOptions(), handler, outgoing)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Event{Opened(), Received(Text("hello")), Closed()}, seen)
}

func TestReceiveBlockingReturnsErrors(t *testing.T) {
	err := ReceiveBlocking("ws://127.0.0.1:1", DefaultOptions(), nil)
	var ce *ConnectError
	assert.ErrorAs(t, err, &ce)

	srv := newServer(t, func(conn *websocket.Conn, _ *http.Request) {
		conn.WriteMessage(websocket.BinaryMessage, make([]byte, 64))
	})
	err = ReceiveBlocking(wsURL(srv), NewOptions(WithMaxIncomingFrameSize(16)), nil)
	require.Error(t, err)
	assert.True(t, transport.IsReadLimit(err))
}

func TestMetricsCountTraffic(t *testing.T) {
	reg := prometheus.NewRegistry()
	EnableMetrics(reg)
	t.Cleanup(func() { activeMetrics.Store(nil) })

	srv := newEchoServer(t, transport.EchoConfig{})
	sender, receiver, err := Dial(wsURL(srv))
	require.NoError(t, err)
	defer sender.Close()

	sender.Send(Text("a"))
	sender.Send(Binary([]byte{1}))
	collect(t, receiver, 3)

	assert.Equal(t, 1.0, counterValue(t, reg, "websock_connects_total", "result", "ok"))
	assert.Equal(t, 1.0, counterValue(t, reg, "websock_frames_sent_total", "kind", "text"))
	assert.Equal(t, 1.0, counterValue(t, reg, "websock_frames_received_total", "kind", "binary"))
	assert.Equal(t, 1.0, counterValue(t, reg, "websock_events_total", "type", "opened"))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
