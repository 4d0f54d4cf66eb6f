package session

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/torsteingrindvik/serial-keel/internal/observability"
	"github.com/torsteingrindvik/serial-keel/internal/protocol"
)

// readLoop is the sole caller of Transport.Receive. It decodes each frame
// and routes it to the matching mailbox or to the correlator, in strict
// arrival order, until the transport fails or the session is closed.
func (s *Session) readLoop() {
	defer close(s.readerDone)
	// The reader is the only sender on the correlator channel; closing it
	// here unblocks every control-plane waiter after the session broke.
	defer close(s.replies)

	for {
		text, err := s.transport.Receive()
		if err != nil {
			if s.isClosing() {
				s.fail(ErrClosed)
			} else {
				s.logger.Error().Err(err).Msg("transport receive failed")
				s.fail(fmt.Errorf("%w: transport: %s", ErrClosed, err))
			}
			return
		}

		frame, err := protocol.DecodeFrame(text)
		if err != nil {
			observability.RecordFrame("decode_error")
			s.logger.Error().Err(err).Msg("undecodable frame, session broken")
			s.fail(fmt.Errorf("%w: %s", ErrClosed, err))
			return
		}

		switch frame.Kind {
		case protocol.FrameAsyncMessage:
			if !s.routeAsync(frame.Async) {
				return
			}
		case protocol.FrameControlReply:
			observability.RecordFrame("control")
			observability.RecordControlReply(frame.Reply.Kind.String())
			// Grant and queue lists name endpoints the server may start
			// streaming immediately; register their mailboxes before the
			// caller even sees the reply.
			switch frame.Reply.Kind {
			case protocol.ReplyGranted, protocol.ReplyQueued:
				for _, entry := range frame.Reply.Endpoints {
					s.ensureMailbox(entry.ID)
				}
			}
			if !s.deliverReply(controlReply{reply: frame.Reply}) {
				return
			}
		case protocol.FrameRemoteError:
			observability.RecordFrame("remote_error")
			s.logger.Warn().Str("error", frame.RemoteErr).Msg("server error envelope")
			if !s.deliverReply(controlReply{isErr: true, remoteErr: frame.RemoteErr}) {
				return
			}
		}
	}
}

// routeAsync delivers one data message to its mailbox. A message for an
// endpoint with no mailbox violates the dispatch invariant and breaks the
// session.
func (s *Session) routeAsync(msg protocol.AsyncMessage) bool {
	s.mu.Lock()
	mb, ok := s.mailboxes[msg.Endpoint.ID]
	s.mu.Unlock()
	if !ok {
		observability.RecordFrame("unroutable")
		err := fmt.Errorf("%w: message for unregistered endpoint %s", ErrClosed, msg.Endpoint.ID)
		s.logger.Error().Stringer("endpoint", msg.Endpoint.ID).Msg("message for unregistered endpoint, session broken")
		s.fail(err)
		return false
	}
	observability.RecordFrame("async")
	observability.RecordAsyncMessage()
	mb.push(normalizeMessage(msg.Message))
	return true
}

// deliverReply enqueues onto the correlator, giving up if the session is
// closing so Close never deadlocks against a full channel.
func (s *Session) deliverReply(entry controlReply) bool {
	select {
	case s.replies <- entry:
		return true
	case <-s.closeSig:
		s.fail(ErrClosed)
		return false
	}
}

func (s *Session) isClosing() bool {
	select {
	case <-s.closeSig:
		return true
	default:
		return false
	}
}

// normalizeMessage trims trailing whitespace; payloads arrive as raw
// bytes with the line terminator still attached.
func normalizeMessage(message string) string {
	return strings.TrimRightFunc(message, unicode.IsSpace)
}
