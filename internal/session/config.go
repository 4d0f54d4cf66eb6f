package session

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/torsteingrindvik/serial-keel/internal/transport"
)

// Transport is the connection collaborator: whole text frames in and out.
// Receive must have a single caller (the session's reader); Close must
// unblock a pending Receive.
type Transport interface {
	Send(text string) error
	Receive() (string, error)
	Close() error
}

// Config describes one session.
type Config struct {
	// URI of the serial-keel server, ws:// or wss://. Ignored when
	// Transport is set.
	URI string

	// DefaultTimeout bounds each control-plane round trip and each
	// mailbox pull.
	DefaultTimeout time.Duration

	// ControlAnyTimeout bounds ControlAny separately: waiting for a
	// label match can legitimately take longer than ordinary calls.
	ControlAnyTimeout time.Duration

	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration

	// Logger receives session diagnostics. The zero value is silent.
	Logger zerolog.Logger

	// TLS applies to wss URIs.
	TLS transport.TLSConfig

	// Transport, when set, is used instead of dialing URI. The session
	// takes ownership and closes it.
	Transport Transport
}

func DefaultConfig() Config {
	return Config{
		DefaultTimeout:    10 * time.Second,
		ControlAnyTimeout: 30 * time.Second,
		HandshakeTimeout:  5 * time.Second,
	}
}

func (c Config) WithDefaults() Config {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 10 * time.Second
	}
	if c.ControlAnyTimeout <= 0 {
		c.ControlAnyTimeout = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	return c
}
