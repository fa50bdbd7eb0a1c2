// Package transcriber manages the streaming connection to the speech
// recognition service.
package transcriber

import (
	"context"
	"errors"
)

var (
	ErrConfig    = errors.New("transcriber: missing API key")
	ErrNotReady  = errors.New("transcriber: connection not open")
	ErrTransport = errors.New("transcriber: transport")
)

type Credentials struct {
	APIKey string
}

// Transport is one live stream to the service. Recv is called from a single
// goroutine; the other methods may be called concurrently with it.
type Transport interface {
	Send(pcm []byte) error
	KeepAlive() error
	CloseStream() error
	// Recv blocks for the next service event. A normal end of stream is
	// reported as Closed{} with a nil error.
	Recv() (Event, error)
	// Close unblocks Recv. It may be called more than once.
	Close() error
}

type Dialer func(ctx context.Context, creds Credentials) (Transport, error)
