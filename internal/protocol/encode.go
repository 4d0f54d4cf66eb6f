package protocol

import (
	"encoding/json"
	"fmt"
)

// Actions are serde externally tagged on the wire: a JSON object with
// exactly one key naming the variant.

func EncodeWrite(id EndpointID, message string) (string, error) {
	return encodeAction("Write", [2]any{id, message})
}

func EncodeObserve(id EndpointID) (string, error) {
	return encodeAction("Observe", id)
}

func EncodeControl(id EndpointID) (string, error) {
	return encodeAction("Control", id)
}

func EncodeControlAny(labels Labels) (string, error) {
	if labels == nil {
		labels = Labels{}
	}
	return encodeAction("ControlAny", labels)
}

func encodeAction(variant string, value any) (string, error) {
	payload, err := json.Marshal(map[string]any{variant: value})
	if err != nil {
		return "", fmt.Errorf("protocol: encode %s action: %w", variant, err)
	}
	return string(payload), nil
}
