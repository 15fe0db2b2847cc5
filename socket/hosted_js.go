//go:build js && wasm

package socket

import (
	"errors"

	"github.com/google/uuid"
	"github.com/kleeedolinux/websock.go/socket/transport"
)

// ConnectHandler creates a browser WebSocket and registers its callbacks,
// which call handler for every event. Only failure to construct the
// WebSocket is returned; everything else arrives as EventError.
// MaxIncomingFrameSize, AdditionalHeaders and ReadTimeout have no browser
// equivalent and are ignored.
func ConnectHandler(rawURL string, opts Options, handler EventHandler) (*Sender, error) {
	ws, err := transport.NewBrowserSocket(rawURL, opts.Subprotocols)
	if errors.Is(err, transport.ErrNoWebSocket) {
		err = ErrHostUnavailable
	}
	if err != nil {
		return nil, &ConnectError{Op: "open", URL: rawURL, Err: err}
	}
	return startHosted(uuid.NewString(), ws, handler), nil
}
