package transcriber

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"murmur/internal/tick"
	"murmur/log"
)

const (
	DefaultHeartbeat = 10 * time.Second
	// DefaultCloseGrace bounds how long Close waits for the service to flush
	// results after CloseStream.
	DefaultCloseGrace = 2 * time.Second
	eventBuffer       = 64
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Option func(*Conn)

// WithHeartbeat sets the keepalive period while the connection is open.
func WithHeartbeat(d time.Duration) Option {
	return func(c *Conn) { c.heartbeat = d }
}

// WithCloseGrace sets how long Close waits for final results.
func WithCloseGrace(d time.Duration) Option {
	return func(c *Conn) { c.closeGrace = d }
}

// WithTicker replaces the ticker used for keepalives.
func WithTicker(f tick.Factory) Option {
	return func(c *Conn) { c.newTicker = f }
}

// WithStateHook registers fn to run after every state transition. fn runs with
// the connection lock released and must not block; it should read State itself.
func WithStateHook(fn func()) Option {
	return func(c *Conn) { c.onState = fn }
}

// Conn is one streaming connection. It is opened once and never reopened.
type Conn struct {
	dial       Dialer
	creds      Credentials
	heartbeat  time.Duration
	closeGrace time.Duration
	newTicker  tick.Factory
	onState    func()

	mu     sync.Mutex
	state  State
	tr     Transport
	stopHB func()

	events    chan Event
	quit      chan struct{}
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Open validates creds and starts dialing in the background. It does not wait
// for the handshake; Opened is emitted once the stream is usable.
func Open(ctx context.Context, dial Dialer, creds Credentials, opts ...Option) (*Conn, error) {
	if strings.TrimSpace(creds.APIKey) == "" {
		log.Error("connection not opened: API key is not defined")
		return nil, ErrConfig
	}
	c := &Conn{
		dial:       dial,
		creds:      creds,
		heartbeat:  DefaultHeartbeat,
		closeGrace: DefaultCloseGrace,
		newTicker:  tick.Real,
		events:     make(chan Event, eventBuffer),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Lock()
	c.setState(StateConnecting)
	c.mu.Unlock()
	c.fireState()

	go c.pump(ctx)
	return c, nil
}

// Events is closed after the connection reaches StateClosed or StateErrored.
func (c *Conn) Events() <-chan Event { return c.events }

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether audio can be sent.
func (c *Conn) Ready() bool { return c.State() == StateOpen }

// Send forwards one PCM chunk. It returns ErrNotReady without touching the
// transport unless the connection is open.
func (c *Conn) Send(chunk []byte) error {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		c.dropped.Add(1)
		return ErrNotReady
	}
	tr := c.tr
	c.mu.Unlock()

	if err := tr.Send(chunk); err != nil {
		log.Warnf("send %d bytes: %v", len(chunk), err)
		return fmt.Errorf("%w: send: %v", ErrTransport, err)
	}
	c.sent.Add(1)
	return nil
}

// Stats returns how many chunks were sent and how many were refused.
func (c *Conn) Stats() (sent, dropped uint64) {
	return c.sent.Load(), c.dropped.Load()
}

// Close finishes the stream and waits for the event channel to close. An open
// stream is asked to finish and results still in flight are emitted until the
// service closes it or the close grace runs out. Calling it again is a no-op.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		prev := c.state
		if prev == StateConnecting || prev == StateOpen {
			c.setState(StateClosing)
		}
		tr := c.tr
		c.stopHeartbeat()
		c.mu.Unlock()
		c.fireState()
		close(c.quit)

		if prev == StateOpen && tr != nil {
			if err := tr.CloseStream(); err != nil {
				log.Warnf("close stream: %v", err)
			} else {
				select {
				case <-c.done:
				case <-time.After(c.closeGrace):
					log.Warnf("close stream: no reply within %v", c.closeGrace)
				}
			}
		}
		c.cancel()
		if tr != nil {
			tr.Close()
		}
	})
	<-c.done
	return nil
}

func (c *Conn) pump(ctx context.Context) {
	defer func() {
		c.cancel()
		close(c.events)
		close(c.done)
	}()

	tr, err := c.dial(ctx, c.creds)
	if err != nil {
		if c.State() == StateClosing {
			c.finish(StateClosed, Closed{})
			return
		}
		c.finish(StateErrored, ErrorEvent{Err: fmt.Errorf("%w: dial: %v", ErrTransport, err)})
		return
	}

	c.mu.Lock()
	if c.state == StateClosing {
		c.mu.Unlock()
		tr.Close()
		c.finish(StateClosed, Closed{})
		return
	}
	c.tr = tr
	c.setState(StateOpen)
	c.startHeartbeat(tr)
	c.mu.Unlock()
	c.fireState()
	c.emit(Opened{})

	for {
		ev, err := tr.Recv()
		if err != nil {
			if c.State() == StateClosing {
				c.finish(StateClosed, Closed{})
			} else {
				c.finish(StateErrored, ErrorEvent{Err: fmt.Errorf("%w: read: %v", ErrTransport, err)})
			}
			tr.Close()
			return
		}
		switch e := ev.(type) {
		case Closed:
			c.finish(StateClosed, e)
			tr.Close()
			return
		case ErrorEvent:
			c.finish(StateErrored, e)
			tr.Close()
			return
		case Warning:
			log.ServiceEvent(kindOf(e), e.Info)
		case Metadata:
			log.ServiceEvent(kindOf(e), e.Info)
		}
		c.emit(ev)
	}
}

// finish moves to a terminal state and emits its event. Only pump calls it.
func (c *Conn) finish(to State, ev Event) {
	c.mu.Lock()
	c.stopHeartbeat()
	c.setState(to)
	c.mu.Unlock()
	c.fireState()

	switch e := ev.(type) {
	case ErrorEvent:
		log.ServiceEvent(kindOf(e), fmt.Sprint(e.Err))
	default:
		log.ServiceEvent(kindOf(e), "")
	}
	c.emit(ev)
}

// emit delivers ev in order. After Close only events that fit in the buffer
// are kept.
func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.quit:
		select {
		case c.events <- ev:
		default:
		}
	}
}

// setState must be called with mu held.
func (c *Conn) setState(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	log.ConnectionState(from.String(), to.String())
}

func (c *Conn) fireState() {
	if c.onState != nil {
		c.onState()
	}
}

// startHeartbeat must be called with mu held.
func (c *Conn) startHeartbeat(tr Transport) {
	t := c.newTicker(c.heartbeat)
	stop := make(chan struct{})
	var once sync.Once
	c.stopHB = func() {
		once.Do(func() {
			t.Stop()
			close(stop)
		})
	}
	go func() {
		for {
			select {
			case <-t.C():
				if err := tr.KeepAlive(); err != nil {
					log.Warnf("keepalive: %v", err)
					continue
				}
				log.ServiceEvent("keepalive", "")
			case <-stop:
				return
			}
		}
	}()
}

// stopHeartbeat must be called with mu held.
func (c *Conn) stopHeartbeat() {
	if c.stopHB != nil {
		c.stopHB()
	}
}
