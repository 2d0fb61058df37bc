package sonic

import (
	"context"
	"errors"
)

// Stream is one open bidirectional model stream.
// Send is only called by the owning Session under its send lock; Recv is only called by its reader.
type Stream interface {
	Send(ctx context.Context, payload []byte) error
	// Recv returns the next raw event payload, or io.EOF once the remote side has finished.
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}

// Transport opens model streams.
type Transport interface {
	Open(ctx context.Context) (Stream, error)
}

var (
	ErrTransportUnavailable = errors.New("sonic: transport unavailable")
	ErrSessionNotActive     = errors.New("sonic: session not active")
)
