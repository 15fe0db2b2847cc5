package socket

type Receiver struct {
	events *fifo[Event]
}

func NewReceiver() (*Receiver, EventHandler) {
	return NewReceiverWithWakeUp(nil)
}

// wakeUp is called after every queued event.
func NewReceiverWithWakeUp(wakeUp func()) (*Receiver, EventHandler) {
	r := &Receiver{events: newFIFO[Event]()}

	handler := func(e Event) Directive {
		if !r.events.Push(e) {
			return Break
		}
		if wakeUp != nil {
			wakeUp()
		}
		return Continue
	}
	return r, handler
}

func (r *Receiver) TryRecv() (Event, bool) {
	e, state := r.events.TryPop()
	return e, state == popItem
}

func (r *Receiver) Ready() <-chan struct{} {
	return r.events.Ready()
}

func (r *Receiver) Len() int {
	return r.events.Len()
}

// Close makes the feeding handler return Break on the next event.
func (r *Receiver) Close() {
	r.events.Discard()
}
