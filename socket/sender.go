package socket

import (
	"runtime"
	"sync"

	"github.com/kleeedolinux/websock.go/debug"
)

type outlet interface {
	send(Message)
	close() error
}

type senderState int

const (
	senderOpen senderState = iota
	senderClosed
	senderForgotten
)

// A Sender collected while open closes its connection.
type Sender struct {
	mu    sync.Mutex
	id    string
	state senderState
	out   outlet
}

func newSender(id string, out outlet) *Sender {
	s := &Sender{id: id, out: out}
	runtime.SetFinalizer(s, (*Sender).finalize)
	return s
}

func (s *Sender) Send(msg Message) {
	mustSendable(msg)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != senderOpen {
		return
	}
	s.out.send(msg)
}

func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != senderOpen {
		return nil
	}

	debug.Printf("Sender %s: Closing connection", s.id)
	s.state = senderClosed
	out := s.out
	s.out = nil
	runtime.SetFinalizer(s, nil)
	return out.close()
}

func (s *Sender) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != senderOpen {
		return
	}
	s.state = senderForgotten
	s.out = nil
	runtime.SetFinalizer(s, nil)
}

func (s *Sender) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == senderOpen
}

func (s *Sender) finalize() {
	if err := s.Close(); err != nil {
		debug.Printf("Sender %s: Failed to close on collection: %v", s.id, err)
	}
}
