//go:build js && wasm

package transport

import (
	"errors"
	"fmt"
	"syscall/js"
)

var (
	ErrNoWebSocket = errors.New("transport: WebSocket is not available in this host")
	ErrBlobRead    = errors.New("transport: blob not readable")
)

// BrowserSocket wraps the host's WebSocket object.
type BrowserSocket struct {
	ws    js.Value
	funcs []js.Func
}

func NewBrowserSocket(url string, protocols []string) (s *BrowserSocket, err error) {
	ctor := js.Global().Get("WebSocket")
	if ctor.IsUndefined() {
		return nil, ErrNoWebSocket
	}

	defer recoverJS(&err)

	args := []any{url}
	if len(protocols) > 0 {
		list := make([]any, len(protocols))
		for i, p := range protocols {
			list[i] = p
		}
		args = append(args, list)
	}

	ws := ctor.New(args...)
	// Blob payloads are still handled, for hosts that ignore binaryType.
	ws.Set("binaryType", "arraybuffer")

	return &BrowserSocket{ws: ws}, nil
}

func (s *BrowserSocket) Register(cb HostCallbacks) {
	s.on("open", func(js.Value) {
		cb.OnOpen()
	})
	s.on("message", func(ev js.Value) {
		cb.OnMessage(classify(ev.Get("data")))
	})
	s.on("error", func(ev js.Value) {
		cb.OnError(errorMessage(ev))
	})
	s.on("close", func(js.Value) {
		cb.OnClose()
	})
}

func (s *BrowserSocket) on(name string, fn func(js.Value)) {
	f := js.FuncOf(func(_ js.Value, args []js.Value) any {
		ev := js.Undefined()
		if len(args) > 0 {
			ev = args[0]
		}
		fn(ev)
		return nil
	})
	s.funcs = append(s.funcs, f)
	s.ws.Set("on"+name, f)
}

func (s *BrowserSocket) SendText(text string) (err error) {
	defer recoverJS(&err)
	s.ws.Call("send", text)
	return nil
}

func (s *BrowserSocket) SendBinary(data []byte) (err error) {
	defer recoverJS(&err)
	arr := js.Global().Get("Uint8Array").New(len(data))
	js.CopyBytesToJS(arr, data)
	s.ws.Call("send", arr)
	return nil
}

func (s *BrowserSocket) Close() (err error) {
	defer recoverJS(&err)
	s.ws.Call("close")
	return nil
}

func (s *BrowserSocket) Release() {
	for _, name := range []string{"onopen", "onmessage", "onerror", "onclose"} {
		s.ws.Set(name, js.Null())
	}
	for _, f := range s.funcs {
		f.Release()
	}
	s.funcs = nil
}

func classify(data js.Value) Payload {
	switch {
	case data.Type() == js.TypeString:
		return Payload{Kind: PayloadText, Text: data.String()}
	case data.InstanceOf(js.Global().Get("ArrayBuffer")):
		return Payload{Kind: PayloadBinary, Data: copyBuffer(data)}
	case isBlob(data):
		return Payload{
			Kind: PayloadDeferred,
			Load: func(done func([]byte, error)) {
				loadBlob(data, done)
			},
		}
	default:
		return Payload{Kind: PayloadUnknown, Text: describe(data)}
	}
}

func isBlob(v js.Value) bool {
	blob := js.Global().Get("Blob")
	return !blob.IsUndefined() && v.InstanceOf(blob)
}

func copyBuffer(buf js.Value) []byte {
	arr := js.Global().Get("Uint8Array").New(buf)
	b := make([]byte, arr.Get("length").Int())
	js.CopyBytesToGo(b, arr)
	return b
}

func loadBlob(blob js.Value, done func([]byte, error)) {
	var onLoad, onFail js.Func
	release := func() {
		onLoad.Release()
		onFail.Release()
	}

	onLoad = js.FuncOf(func(_ js.Value, args []js.Value) any {
		release()
		done(copyBuffer(args[0]), nil)
		return nil
	})
	onFail = js.FuncOf(func(_ js.Value, args []js.Value) any {
		release()
		done(nil, fmt.Errorf("%w: %s", ErrBlobRead, describe(args[0])))
		return nil
	})

	blob.Call("arrayBuffer").Call("then", onLoad, onFail)
}

func errorMessage(ev js.Value) string {
	if ev.Type() == js.TypeObject {
		if msg := ev.Get("message"); msg.Type() == js.TypeString && msg.String() != "" {
			return msg.String()
		}
	}
	return "websocket error event"
}

func describe(v js.Value) string {
	return js.Global().Get("String").Invoke(v).String()
}

func recoverJS(err *error) {
	if r := recover(); r != nil {
		jsErr, ok := r.(js.Error)
		if !ok {
			panic(r)
		}
		*err = jsErr
	}
}
