package session

import "errors"

var (
	// ErrTimeout is returned when a control-plane reply or a mailbox
	// message does not arrive within the allotted duration.
	ErrTimeout = errors.New("session: timed out")

	// ErrNotObserved is returned when messages are requested for an
	// endpoint that was never observed or controlled.
	ErrNotObserved = errors.New("session: endpoint not observed")

	// ErrProtocol is returned when the server answers with an error
	// envelope or a reply shape the handshake does not allow.
	ErrProtocol = errors.New("session: protocol error")

	// ErrClosed is returned once the session is broken or closed; every
	// pending and future call fails with it instead of hanging.
	ErrClosed = errors.New("session: closed")
)
