package socket

import (
	"sync"

	"github.com/eapache/queue"
)

type popState int

const (
	popItem popState = iota
	popEmpty
	popClosed
)

// fifo is an unbounded queue with a level-triggered readiness channel. Push
// never blocks; a closed fifo still yields its remaining items before
// reporting popClosed.
type fifo[T any] struct {
	mu     sync.Mutex
	items  *queue.Queue
	closed bool
	ready  chan struct{}
}

func newFIFO[T any]() *fifo[T] {
	return &fifo[T]{
		items: queue.New(),
		ready: make(chan struct{}, 1),
	}
}

func (f *fifo[T]) Push(v T) bool {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false
	}
	f.items.Add(v)
	f.mu.Unlock()

	f.signal()
	return true
}

func (f *fifo[T]) TryPop() (T, popState) {
	var zero T

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.items.Length() == 0 {
		if f.closed {
			return zero, popClosed
		}
		return zero, popEmpty
	}

	v := f.items.Remove().(T)
	if f.items.Length() > 0 || f.closed {
		f.signal()
	}
	return v, popItem
}

func (f *fifo[T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	f.signal()
}

// Discard drops pending items and closes the fifo.
func (f *fifo[T]) Discard() int {
	f.mu.Lock()
	n := f.items.Length()
	f.items = queue.New()
	f.closed = true
	f.mu.Unlock()

	f.signal()
	return n
}

func (f *fifo[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items.Length()
}

func (f *fifo[T]) Ready() <-chan struct{} {
	return f.ready
}

func (f *fifo[T]) signal() {
	select {
	case f.ready <- struct{}{}:
	default:
	}
}
