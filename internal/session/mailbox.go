package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/torsteingrindvik/serial-keel/internal/observability"
	"github.com/torsteingrindvik/serial-keel/internal/protocol"
)

// mailbox is the unbounded, ordered buffer of data messages for one
// endpoint. The reader goroutine pushes; one logical consumer pops.
type mailbox struct {
	endpoint protocol.EndpointID

	mu    sync.Mutex
	queue []string
	err   error

	// ready carries at most one pending wakeup; the consumer re-checks
	// the queue after every wakeup, so a coalesced signal is enough.
	ready chan struct{}
	done  chan struct{}
}

func newMailbox(endpoint protocol.EndpointID) *mailbox {
	return &mailbox{
		endpoint: endpoint,
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (m *mailbox) push(message string) {
	m.mu.Lock()
	if m.err != nil {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, message)
	depth := len(m.queue)
	m.mu.Unlock()

	observability.SetMailboxDepth(m.endpoint.String(), depth)
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// pop blocks until a message arrives, the timeout elapses, or the mailbox
// is failed. Arrival order is preserved.
func (m *mailbox) pop(timeout time.Duration) (string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			message := m.queue[0]
			m.queue = m.queue[1:]
			depth := len(m.queue)
			m.mu.Unlock()
			observability.SetMailboxDepth(m.endpoint.String(), depth)
			return message, nil
		}
		err := m.err
		m.mu.Unlock()
		if err != nil {
			return "", err
		}

		select {
		case <-m.ready:
		case <-m.done:
		case <-deadline.C:
			return "", fmt.Errorf("%w: no message from %s within %v", ErrTimeout, m.endpoint, timeout)
		}
	}
}

// fail puts the mailbox in a terminal state so a blocked or future pop
// returns err instead of waiting.
func (m *mailbox) fail(err error) {
	m.mu.Lock()
	already := m.err != nil
	if !already {
		m.err = err
	}
	m.mu.Unlock()
	if !already {
		close(m.done)
	}
}

// MessageStream is a forward-only pull sequence over one endpoint's
// mailbox. It is not restartable; a mailbox has one logical consumer.
type MessageStream struct {
	endpoint protocol.EndpointID
	mb       *mailbox
	timeout  time.Duration
}

func (s *MessageStream) Endpoint() protocol.EndpointID {
	return s.endpoint
}

// Next returns the next message, blocking up to the session's default
// timeout. It fails with ErrTimeout on expiry and with the session's
// terminal error once the session ends.
func (s *MessageStream) Next() (string, error) {
	return s.mb.pop(s.timeout)
}

// NextWithin is Next with a caller-chosen bound.
func (s *MessageStream) NextWithin(timeout time.Duration) (string, error) {
	return s.mb.pop(timeout)
}
