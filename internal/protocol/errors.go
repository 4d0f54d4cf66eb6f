package protocol

import "errors"

var (
	ErrBadEndpoint = errors.New("protocol: invalid endpoint id")
	ErrBadEnvelope = errors.New("protocol: unrecognized envelope")
	ErrBadSync     = errors.New("protocol: unrecognized sync payload")
	ErrBadAsync    = errors.New("protocol: unrecognized async payload")
	ErrBadMessage  = errors.New("protocol: invalid message payload")
)
