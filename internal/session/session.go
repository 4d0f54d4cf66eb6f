package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/torsteingrindvik/serial-keel/internal/observability"
	"github.com/torsteingrindvik/serial-keel/internal/protocol"
	"github.com/torsteingrindvik/serial-keel/internal/transport"
)

// controlReply is one entry on the correlator channel: either a decoded
// sync payload or a remote error envelope, in arrival order.
type controlReply struct {
	reply     protocol.ControlReply
	remoteErr string
	isErr     bool
}

// Session multiplexes endpoint control, writes, and data streams over one
// connection. All methods are safe for concurrent use; control-plane
// calls serialize internally because replies correlate by issue order.
type Session struct {
	transport Transport
	cfg       Config
	logger    zerolog.Logger

	// controlMu enforces single-flight for control-plane round trips.
	controlMu sync.Mutex

	mu         sync.Mutex
	mailboxes  map[protocol.EndpointID]*mailbox
	controlled []protocol.LabelledEndpointID
	fatal      error

	replies    chan controlReply
	closeSig   chan struct{}
	readerDone chan struct{}
	closeOnce  sync.Once
}

// Connect dials the configured server (or adopts cfg.Transport), builds
// the session, and starts its reader.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	cfg = cfg.WithDefaults()

	conn := cfg.Transport
	if conn == nil {
		dialed, err := transport.Dial(ctx, transport.Config{
			URI:              cfg.URI,
			HandshakeTimeout: cfg.HandshakeTimeout,
			TLS:              cfg.TLS,
		})
		if err != nil {
			return nil, err
		}
		conn = dialed
	}

	s := &Session{
		transport:  conn,
		cfg:        cfg,
		logger:     cfg.Logger,
		mailboxes:  make(map[protocol.EndpointID]*mailbox),
		replies:    make(chan controlReply, 64),
		closeSig:   make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	s.logger.Debug().Str("uri", cfg.URI).Msg("session connected")
	go s.readLoop()
	return s, nil
}

// Close cancels the reader and closes the transport, in that order from
// the reader's point of view: when Close returns the reader has exited,
// so no further mailbox writes occur. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeSig)
		_ = s.transport.Close()
		<-s.readerDone
		s.logger.Debug().Msg("session closed")
	})
	return nil
}

// Observe subscribes to an endpoint's data without claiming control.
func (s *Session) Observe(endpoint protocol.EndpointID) error {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	if err := s.aliveErr(); err != nil {
		return fmt.Errorf("observe %s: %w", endpoint, err)
	}

	// The mailbox must exist before the server can produce data for it.
	s.ensureMailbox(endpoint)

	wire, err := protocol.EncodeObserve(endpoint)
	if err != nil {
		return err
	}
	if err := s.transport.Send(wire); err != nil {
		return fmt.Errorf("observe %s: %w: %s", endpoint, ErrClosed, err)
	}

	reply, err := s.awaitReply(s.cfg.DefaultTimeout, func() error {
		return fmt.Errorf("%w: observe %s after %v", ErrTimeout, endpoint, s.cfg.DefaultTimeout)
	})
	if err != nil {
		return err
	}
	if reply.Kind != protocol.ReplyObserving {
		return fmt.Errorf("%w: observe %s answered %s", ErrProtocol, endpoint, reply.Kind)
	}
	s.logger.Debug().Stringer("endpoint", endpoint).Msg("observing")
	return nil
}

// Control requests exclusive control of one named endpoint, following the
// queued/granted admission handshake. Control implies observe, so the
// mailbox is registered before the request is sent.
func (s *Session) Control(endpoint protocol.EndpointID) ([]protocol.LabelledEndpointID, error) {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	if err := s.aliveErr(); err != nil {
		return nil, fmt.Errorf("control %s: %w", endpoint, err)
	}

	s.ensureMailbox(endpoint)

	wire, err := protocol.EncodeControl(endpoint)
	if err != nil {
		return nil, err
	}
	if err := s.transport.Send(wire); err != nil {
		return nil, fmt.Errorf("control %s: %w: %s", endpoint, ErrClosed, err)
	}

	granted, err := s.awaitAdmission(endpoint.String(), s.cfg.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	s.recordControlled(granted)
	return granted, nil
}

// ControlAny requests control of any endpoint whose labels are a superset
// of the given labels, using the session's ControlAnyTimeout.
func (s *Session) ControlAny(labels protocol.Labels) ([]protocol.LabelledEndpointID, error) {
	return s.ControlAnyWithin(labels, s.cfg.ControlAnyTimeout)
}

// ControlAnyWithin is ControlAny with a caller-chosen bound. It returns
// the full controlled set, cumulative across calls, not just the newly
// granted endpoints.
func (s *Session) ControlAnyWithin(labels protocol.Labels, timeout time.Duration) ([]protocol.LabelledEndpointID, error) {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	if err := s.aliveErr(); err != nil {
		return nil, fmt.Errorf("control any [%s]: %w", labels, err)
	}

	wire, err := protocol.EncodeControlAny(labels)
	if err != nil {
		return nil, err
	}
	if err := s.transport.Send(wire); err != nil {
		return nil, fmt.Errorf("control any [%s]: %w: %s", labels, ErrClosed, err)
	}

	granted, err := s.awaitAdmissionAny(labels, timeout)
	if err != nil {
		return nil, err
	}
	s.recordControlled(granted)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.LabelledEndpointID, len(s.controlled))
	copy(out, s.controlled)
	return out, nil
}

// Write sends text to an endpoint and waits for the acknowledgment
// sentinel.
func (s *Session) Write(endpoint protocol.EndpointID, message string) error {
	s.controlMu.Lock()
	defer s.controlMu.Unlock()
	if err := s.aliveErr(); err != nil {
		return fmt.Errorf("write %s: %w", endpoint, err)
	}

	wire, err := protocol.EncodeWrite(endpoint, message)
	if err != nil {
		return err
	}
	if err := s.transport.Send(wire); err != nil {
		return fmt.Errorf("write %s: %w: %s", endpoint, ErrClosed, err)
	}

	reply, err := s.awaitReply(s.cfg.DefaultTimeout, func() error {
		return fmt.Errorf("%w: write %s after %v", ErrTimeout, endpoint, s.cfg.DefaultTimeout)
	})
	if err != nil {
		return err
	}
	if reply.Kind != protocol.ReplyWriteOk {
		return fmt.Errorf("%w: write %s answered %s instead of write-ok", ErrProtocol, endpoint, reply.Kind)
	}
	observability.RecordWriteAck()
	return nil
}

// WriteFile reads the whole file as text and writes it to the endpoint.
func (s *Session) WriteFile(endpoint protocol.EndpointID, path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("write %s from file: %w", endpoint, err)
	}
	return s.Write(endpoint, string(contents))
}

// EndpointMessages returns the message stream for an endpoint. It fails
// immediately with ErrNotObserved when the endpoint was never observed or
// controlled in this session.
func (s *Session) EndpointMessages(endpoint protocol.EndpointID) (*MessageStream, error) {
	s.mu.Lock()
	mb, ok := s.mailboxes[endpoint]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotObserved, endpoint)
	}
	return &MessageStream{endpoint: endpoint, mb: mb, timeout: s.cfg.DefaultTimeout}, nil
}

// Controlled returns the endpoints currently under this session's
// exclusive control, in grant order.
func (s *Session) Controlled() []protocol.LabelledEndpointID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.LabelledEndpointID, len(s.controlled))
	copy(out, s.controlled)
	return out
}

// awaitAdmission runs the granted/queued handshake for a request already
// on the wire.
func (s *Session) awaitAdmission(what string, timeout time.Duration) ([]protocol.LabelledEndpointID, error) {
	reply, err := s.awaitReply(timeout, func() error {
		return fmt.Errorf("%w: control %s after %v", ErrTimeout, what, timeout)
	})
	if err != nil {
		return nil, err
	}
	switch reply.Kind {
	case protocol.ReplyGranted:
		return reply.Endpoints, nil
	case protocol.ReplyQueued:
		s.logger.Info().Str("control", what).Msg("queued, awaiting grant")
		granted, err := s.awaitReply(timeout, func() error {
			return fmt.Errorf("%w: queued on %s, no grant after %v", ErrTimeout, what, timeout)
		})
		if err != nil {
			return nil, err
		}
		if granted.Kind != protocol.ReplyGranted {
			return nil, fmt.Errorf("%w: queued on %s but then answered %s", ErrProtocol, what, granted.Kind)
		}
		return granted.Endpoints, nil
	default:
		return nil, fmt.Errorf("%w: control %s answered %s", ErrProtocol, what, reply.Kind)
	}
}

func (s *Session) awaitAdmissionAny(labels protocol.Labels, timeout time.Duration) ([]protocol.LabelledEndpointID, error) {
	reply, err := s.awaitReply(timeout, func() error {
		return fmt.Errorf("%w: no endpoint with labels [%s] available within %v", ErrTimeout, labels, timeout)
	})
	if err != nil {
		return nil, err
	}
	switch reply.Kind {
	case protocol.ReplyGranted:
		return reply.Endpoints, nil
	case protocol.ReplyQueued:
		s.logger.Info().Str("labels", labels.String()).Msg("queued, awaiting grant")
		granted, err := s.awaitReply(timeout, func() error {
			return fmt.Errorf("%w: queued on labels [%s], no grant after %v", ErrTimeout, labels, timeout)
		})
		if err != nil {
			return nil, err
		}
		if granted.Kind != protocol.ReplyGranted {
			return nil, fmt.Errorf("%w: queued on labels [%s] but then answered %s", ErrProtocol, labels, granted.Kind)
		}
		return granted.Endpoints, nil
	default:
		return nil, fmt.Errorf("%w: control any [%s] answered %s", ErrProtocol, labels, reply.Kind)
	}
}

// awaitReply consumes exactly one correlator entry, bounded by timeout.
func (s *Session) awaitReply(timeout time.Duration, onTimeout func() error) (protocol.ControlReply, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case entry, ok := <-s.replies:
		if !ok {
			return protocol.ControlReply{}, s.terminalErr()
		}
		if entry.isErr {
			return protocol.ControlReply{}, fmt.Errorf("%w: server: %s", ErrProtocol, entry.remoteErr)
		}
		return entry.reply, nil
	case <-deadline.C:
		return protocol.ControlReply{}, onTimeout()
	}
}

func (s *Session) ensureMailbox(endpoint protocol.EndpointID) {
	s.mu.Lock()
	if _, ok := s.mailboxes[endpoint]; !ok {
		mb := newMailbox(endpoint)
		if s.fatal != nil {
			mb.fail(s.fatal)
		}
		s.mailboxes[endpoint] = mb
	}
	s.mu.Unlock()
}

func (s *Session) recordControlled(granted []protocol.LabelledEndpointID) {
	s.mu.Lock()
	for _, entry := range granted {
		if _, ok := s.mailboxes[entry.ID]; !ok {
			mb := newMailbox(entry.ID)
			if s.fatal != nil {
				mb.fail(s.fatal)
			}
			s.mailboxes[entry.ID] = mb
		}
		if !containsEndpoint(s.controlled, entry.ID) {
			s.controlled = append(s.controlled, entry)
		}
	}
	count := len(s.controlled)
	s.mu.Unlock()
	observability.SetControlledEndpoints(count)
}

func containsEndpoint(list []protocol.LabelledEndpointID, id protocol.EndpointID) bool {
	for _, entry := range list {
		if entry.ID == id {
			return true
		}
	}
	return false
}

func (s *Session) aliveErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

func (s *Session) terminalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal != nil {
		return s.fatal
	}
	return ErrClosed
}

// fail marks the session broken and unblocks every mailbox consumer.
// The reader closes the correlator channel after calling this, which
// unblocks control-plane waiters.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.fatal == nil {
		s.fatal = err
	}
	boxes := make([]*mailbox, 0, len(s.mailboxes))
	for _, mb := range s.mailboxes {
		boxes = append(boxes, mb)
	}
	terminal := s.fatal
	s.mu.Unlock()

	for _, mb := range boxes {
		mb.fail(terminal)
	}
}
