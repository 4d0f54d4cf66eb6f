// Package transport owns the persistent websocket connection to a
// serial-keel server. It exposes whole text frames; framing, handshake,
// and TLS stop here.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrURIRequired      = errors.New("transport: server uri required")
	ErrUnsupportedURI   = errors.New("transport: unsupported uri scheme")
	ErrNonTextFrame     = errors.New("transport: non-text frame received")
	ErrConnectionClosed = errors.New("transport: connection closed")
)

// TLSConfig carries the client-side trust settings for wss connections.
type TLSConfig struct {
	ServerName         string
	CAFile             string
	InsecureSkipVerify bool
}

// Config describes how to reach the server.
type Config struct {
	URI              string
	HandshakeTimeout time.Duration
	TLS              TLSConfig
}

func (c Config) WithDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	return c
}

func (c Config) Validate() error {
	uri := strings.TrimSpace(c.URI)
	if uri == "" {
		return ErrURIRequired
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedURI, err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedURI, parsed.Scheme)
	}
}

// Conn is one live websocket connection. Send may be called from multiple
// goroutines; Receive must have a single caller.
type Conn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Dial opens the websocket connection described by cfg.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	uri := strings.TrimSpace(cfg.URI)
	if strings.HasPrefix(uri, "wss://") {
		tlsCfg, err := clientTLSConfig(uri, cfg.TLS)
		if err != nil {
			return nil, err
		}
		dialer.TLSClientConfig = tlsCfg
	}

	ws, resp, err := dialer.DialContext(ctx, uri, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %w (status %s)", uri, err, resp.Status)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", uri, err)
	}
	return &Conn{ws: ws}, nil
}

func clientTLSConfig(uri string, cfg TLSConfig) (*tls.Config, error) {
	out := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	serverName := strings.TrimSpace(cfg.ServerName)
	if serverName == "" {
		parsed, err := url.Parse(uri)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedURI, err)
		}
		serverName = parsed.Hostname()
	}
	out.ServerName = serverName

	if caPath := strings.TrimSpace(cfg.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("transport: parse tls ca bundle: %s", caPath)
		}
		out.RootCAs = pool
	}
	return out, nil
}

// Send writes one text frame.
func (c *Conn) Send(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("%w: %s", ErrConnectionClosed, err)
	}
	return nil
}

// Receive blocks until the next text frame or connection failure.
func (c *Conn) Receive() (string, error) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrConnectionClosed, err)
		}
		switch messageType {
		case websocket.TextMessage:
			return string(data), nil
		case websocket.BinaryMessage:
			return "", fmt.Errorf("%w: %d bytes", ErrNonTextFrame, len(data))
		default:
			// Control frames are handled by the library; anything else
			// surfacing here is ignored.
		}
	}
}

// Close sends a close frame best effort and tears the connection down,
// unblocking a pending Receive. Idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage, message, deadline)
		c.writeMu.Unlock()
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
