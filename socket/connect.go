package socket

// Connect opens a connection to url. Events are passed to handler, when not
// nil, and queued on the Receiver unless handler returned Break.
func Connect(url string, opts Options, handler EventHandler) (*Sender, *Receiver, error) {
	return connect(url, opts, handler, nil)
}

func ConnectWithWakeUp(url string, opts Options, wakeUp func()) (*Sender, *Receiver, error) {
	return connect(url, opts, nil, wakeUp)
}

func Dial(url string) (*Sender, *Receiver, error) {
	return connect(url, DefaultOptions(), nil, nil)
}

func Receive(url string, opts Options, handler EventHandler) (*Receiver, error) {
	sender, receiver, err := connect(url, opts, handler, nil)
	if err != nil {
		return nil, err
	}
	sender.Forget()
	return receiver, nil
}

func connect(url string, opts Options, handler EventHandler, wakeUp func()) (*Sender, *Receiver, error) {
	receiver, push := NewReceiverWithWakeUp(wakeUp)

	onEvent := push
	if handler != nil {
		onEvent = func(e Event) Directive {
			if handler(e) == Break {
				return Break
			}
			return push(e)
		}
	}

	sender, err := ConnectHandler(url, opts.Clone(), onEvent)
	if err != nil {
		receiver.Close()
		return nil, nil, err
	}
	return sender, receiver, nil
}
