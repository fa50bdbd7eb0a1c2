package transcriber

import "fmt"

// Event is one notification from the connection. The set of kinds is closed:
// only types in this package implement it.
type Event interface {
	event()
}

type Opened struct{}

// Fragment is a piece of recognized text, already trimmed by the service.
type Fragment struct {
	Text    string
	IsFinal bool
}

// Warning carries a service message the connection does not act on.
type Warning struct {
	Info string
}

type Metadata struct {
	Info string
}

type ErrorEvent struct {
	Err error
}

type Closed struct{}

func (Opened) event()     {}
func (Fragment) event()   {}
func (Warning) event()    {}
func (Metadata) event()   {}
func (ErrorEvent) event() {}
func (Closed) event()     {}

// Handler has one method per event kind.
type Handler interface {
	OnOpened()
	OnFragment(Fragment)
	OnWarning(Warning)
	OnMetadata(Metadata)
	OnError(ErrorEvent)
	OnClosed()
}

// Dispatch routes ev to the matching Handler method.
func Dispatch(ev Event, h Handler) {
	switch e := ev.(type) {
	case Opened:
		h.OnOpened()
	case Fragment:
		h.OnFragment(e)
	case Warning:
		h.OnWarning(e)
	case Metadata:
		h.OnMetadata(e)
	case ErrorEvent:
		h.OnError(e)
	case Closed:
		h.OnClosed()
	default:
		panic(fmt.Sprintf("transcriber: unknown event %T", ev))
	}
}

func kindOf(ev Event) string {
	switch ev.(type) {
	case Opened:
		return "connected"
	case Fragment:
		return "transcript"
	case Warning:
		return "warning"
	case Metadata:
		return "metadata"
	case ErrorEvent:
		return "error"
	case Closed:
		return "disconnected"
	}
	return "unknown"
}
