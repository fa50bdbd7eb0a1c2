package transcriber

import (
	"context"
	"errors"
	"sync"
)

var errFakeClosed = errors.New("fake transport closed")

// FakeTransport is a scripted Transport for tests and headless runs. Events
// given to Push are returned by Recv in order. With EchoEvery set, every n-th
// chunk sent produces the next word of EchoWords as a final fragment.
// CloseStream answers like the service: the Flush events, then Closed.
type FakeTransport struct {
	DialErr    error
	SendErr    error
	Gate       chan struct{} // when set, dialing waits until it is closed
	EchoEvery  int
	EchoWords  []string
	Flush      []Event
	Unanswered bool // CloseStream gets no reply

	mu           sync.Mutex
	events       chan Event
	closed       chan struct{}
	closeOnce    sync.Once
	dials        int
	sends        int
	sentBytes    int
	keepAlives   int
	closeStreams int
	echoed       int
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		events: make(chan Event, 256),
		closed: make(chan struct{}),
	}
}

// Dialer returns a Dialer handing out this transport.
func (f *FakeTransport) Dialer() Dialer {
	return func(ctx context.Context, _ Credentials) (Transport, error) {
		f.mu.Lock()
		f.dials++
		gate := f.Gate
		f.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if f.DialErr != nil {
			return nil, f.DialErr
		}
		return f, nil
	}
}

// Push queues ev for Recv. It is dropped once the transport is closed.
func (f *FakeTransport) Push(ev Event) {
	select {
	case <-f.closed:
	case f.events <- ev:
	}
}

func (f *FakeTransport) Send(pcm []byte) error {
	f.mu.Lock()
	if f.SendErr != nil {
		err := f.SendErr
		f.mu.Unlock()
		return err
	}
	f.sends++
	f.sentBytes += len(pcm)
	var word string
	if f.EchoEvery > 0 && len(f.EchoWords) > 0 && f.sends%f.EchoEvery == 0 {
		word = f.EchoWords[f.echoed%len(f.EchoWords)]
		f.echoed++
	}
	f.mu.Unlock()

	if word != "" {
		f.Push(Fragment{Text: word, IsFinal: true})
	}
	return nil
}

func (f *FakeTransport) KeepAlive() error {
	f.mu.Lock()
	f.keepAlives++
	f.mu.Unlock()
	return nil
}

func (f *FakeTransport) CloseStream() error {
	f.mu.Lock()
	f.closeStreams++
	flush, mute := f.Flush, f.Unanswered
	f.mu.Unlock()
	if mute {
		return nil
	}
	for _, ev := range flush {
		f.Push(ev)
	}
	f.Push(Closed{})
	return nil
}

func (f *FakeTransport) Recv() (Event, error) {
	select {
	case ev := <-f.events:
		return ev, nil
	case <-f.closed:
		return nil, errFakeClosed
	}
}

func (f *FakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *FakeTransport) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *FakeTransport) Sends() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

func (f *FakeTransport) SentBytes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sentBytes
}

func (f *FakeTransport) KeepAlives() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keepAlives
}

func (f *FakeTransport) CloseStreams() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeStreams
}
