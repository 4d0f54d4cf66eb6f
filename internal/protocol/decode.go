package protocol

import (
	"encoding/json"
	"fmt"
)

// FrameKind discriminates what a decoded incoming frame carries.
type FrameKind int

const (
	// FrameAsyncMessage is endpoint data the server may send at any time.
	FrameAsyncMessage FrameKind = iota

	// FrameControlReply is a direct reply to a control-plane action.
	FrameControlReply

	// FrameRemoteError is a server-side error envelope. It is still a
	// control-plane reply for correlation purposes.
	FrameRemoteError
)

// ReplyKind discriminates control-plane reply payloads.
type ReplyKind int

const (
	ReplyWriteOk ReplyKind = iota
	ReplyObserving
	ReplyGranted
	ReplyQueued
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyWriteOk:
		return "write-ok"
	case ReplyObserving:
		return "observing"
	case ReplyGranted:
		return "control-granted"
	case ReplyQueued:
		return "control-queued"
	default:
		return fmt.Sprintf("reply-kind-%d", int(k))
	}
}

// AsyncMessage is one data message from an endpoint.
type AsyncMessage struct {
	Endpoint LabelledEndpointID
	Message  string
}

// ControlReply is a decoded sync payload.
type ControlReply struct {
	Kind ReplyKind

	// Observing is set for ReplyObserving.
	Observing LabelledEndpointID

	// Endpoints is set for ReplyGranted and ReplyQueued.
	Endpoints []LabelledEndpointID
}

// Frame is the closed result of decoding one incoming wire frame.
// Exactly one of Async, Reply, RemoteErr is meaningful, selected by Kind.
type Frame struct {
	Kind      FrameKind
	Async     AsyncMessage
	Reply     ControlReply
	RemoteErr string
}

// DecodeFrame parses one incoming text frame. Anything that does not match
// the envelope contract is an error; the caller treats that as fatal.
func DecodeFrame(text string) (Frame, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return Frame{}, fmt.Errorf("%w: %s", ErrBadEnvelope, err)
	}
	if raw, ok := envelope["Ok"]; ok {
		return decodeOk(raw)
	}
	if raw, ok := envelope["Err"]; ok {
		return Frame{Kind: FrameRemoteError, RemoteErr: renderRemoteError(raw)}, nil
	}
	return Frame{}, fmt.Errorf("%w: neither Ok nor Err in %s", ErrBadEnvelope, compact(text))
}

func decodeOk(raw json.RawMessage) (Frame, error) {
	// Newer servers wrap sync payloads in {"Sync": ...}; older revisions
	// send the payload directly. Unit variants arrive as bare strings.
	var variant string
	if err := json.Unmarshal(raw, &variant); err == nil {
		reply, err := decodeSyncString(variant)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Kind: FrameControlReply, Reply: reply}, nil
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return Frame{}, fmt.Errorf("%w: %s", ErrBadEnvelope, err)
	}
	if inner, ok := tagged["Async"]; ok {
		msg, err := decodeAsync(inner)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Kind: FrameAsyncMessage, Async: msg}, nil
	}
	if inner, ok := tagged["Sync"]; ok {
		reply, err := decodeSync(inner)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Kind: FrameControlReply, Reply: reply}, nil
	}
	reply, err := decodeSyncObject(tagged)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: FrameControlReply, Reply: reply}, nil
}

func decodeSync(raw json.RawMessage) (ControlReply, error) {
	var variant string
	if err := json.Unmarshal(raw, &variant); err == nil {
		return decodeSyncString(variant)
	}
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return ControlReply{}, fmt.Errorf("%w: %s", ErrBadSync, err)
	}
	return decodeSyncObject(tagged)
}

func decodeSyncString(variant string) (ControlReply, error) {
	if variant == "WriteOk" {
		return ControlReply{Kind: ReplyWriteOk}, nil
	}
	return ControlReply{}, fmt.Errorf("%w: %q", ErrBadSync, variant)
}

func decodeSyncObject(tagged map[string]json.RawMessage) (ControlReply, error) {
	if raw, ok := tagged["Observing"]; ok {
		var id LabelledEndpointID
		if err := json.Unmarshal(raw, &id); err != nil {
			return ControlReply{}, fmt.Errorf("%w: Observing: %s", ErrBadSync, err)
		}
		return ControlReply{Kind: ReplyObserving, Observing: id}, nil
	}
	if raw, ok := tagged["ControlGranted"]; ok {
		ids, err := decodeEndpointList(raw)
		if err != nil {
			return ControlReply{}, fmt.Errorf("%w: ControlGranted: %s", ErrBadSync, err)
		}
		return ControlReply{Kind: ReplyGranted, Endpoints: ids}, nil
	}
	if raw, ok := tagged["ControlQueue"]; ok {
		ids, err := decodeEndpointList(raw)
		if err != nil {
			return ControlReply{}, fmt.Errorf("%w: ControlQueue: %s", ErrBadSync, err)
		}
		return ControlReply{Kind: ReplyQueued, Endpoints: ids}, nil
	}
	return ControlReply{}, fmt.Errorf("%w: unknown variant", ErrBadSync)
}

func decodeEndpointList(raw json.RawMessage) ([]LabelledEndpointID, error) {
	var ids []LabelledEndpointID
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func decodeAsync(raw json.RawMessage) (AsyncMessage, error) {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return AsyncMessage{}, fmt.Errorf("%w: %s", ErrBadAsync, err)
	}
	inner, ok := tagged["Message"]
	if !ok {
		return AsyncMessage{}, fmt.Errorf("%w: unknown variant", ErrBadAsync)
	}
	var body struct {
		Endpoint LabelledEndpointID `json:"endpoint"`
		Message  json.RawMessage    `json:"message"`
	}
	if err := json.Unmarshal(inner, &body); err != nil {
		return AsyncMessage{}, fmt.Errorf("%w: Message: %s", ErrBadAsync, err)
	}
	text, err := decodeMessagePayload(body.Message)
	if err != nil {
		return AsyncMessage{}, err
	}
	return AsyncMessage{Endpoint: body.Endpoint, Message: text}, nil
}

// decodeMessagePayload accepts both payload encodings seen on the wire:
// a JSON byte array (current servers) or a plain string (older revisions).
func decodeMessagePayload(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: missing message", ErrBadMessage)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}
	var nums []int
	if err := json.Unmarshal(raw, &nums); err != nil {
		return "", fmt.Errorf("%w: %s", ErrBadMessage, err)
	}
	buf := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return "", fmt.Errorf("%w: byte %d out of range", ErrBadMessage, n)
		}
		buf[i] = byte(n)
	}
	return string(buf), nil
}

// renderRemoteError flattens the server's error enum into a readable string
// without modelling every variant.
func renderRemoteError(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &tagged); err == nil && len(tagged) == 1 {
		for variant, value := range tagged {
			return fmt.Sprintf("%s: %s", variant, compact(string(value)))
		}
	}
	return compact(string(raw))
}

func compact(s string) string {
	const limit = 256
	if len(s) > limit {
		return s[:limit] + ".."
	}
	return s
}
