package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates the two endpoint families the server exposes.
type Kind string

const (
	KindMock Kind = "Mock"
	KindTty  Kind = "Tty"
)

// EndpointID identifies one controllable/observable endpoint.
// Identity is (Kind, Name); labels never participate in equality.
type EndpointID struct {
	Kind Kind
	Name string
}

func Mock(name string) EndpointID {
	return EndpointID{Kind: KindMock, Name: name}
}

func Tty(path string) EndpointID {
	return EndpointID{Kind: KindTty, Name: path}
}

func (e EndpointID) String() string {
	switch e.Kind {
	case KindMock:
		return fmt.Sprintf("mock: %s", e.Name)
	case KindTty:
		return fmt.Sprintf("tty: %s", e.Name)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Name)
	}
}

// ParseEndpoint reads the human form "mock:name" or "tty:/dev/path",
// tolerating whitespace around the separator.
func ParseEndpoint(s string) (EndpointID, error) {
	kind, name, ok := strings.Cut(s, ":")
	if !ok {
		return EndpointID{}, fmt.Errorf("%w: %q, want mock:name or tty:path", ErrBadEndpoint, s)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return EndpointID{}, fmt.Errorf("%w: %q has no name", ErrBadEndpoint, s)
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "mock":
		return Mock(name), nil
	case "tty":
		return Tty(name), nil
	default:
		return EndpointID{}, fmt.Errorf("%w: unknown kind in %q", ErrBadEndpoint, s)
	}
}

// MarshalJSON writes the externally tagged wire form, {"Mock":"name"} or
// {"Tty":"name"}.
func (e EndpointID) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case KindMock, KindTty:
		return json.Marshal(map[string]string{string(e.Kind): e.Name})
	default:
		return nil, fmt.Errorf("%w: endpoint kind %q", ErrBadEndpoint, string(e.Kind))
	}
}

func (e *EndpointID) UnmarshalJSON(data []byte) error {
	var tagged map[string]string
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("%w: %s", ErrBadEndpoint, err)
	}
	if name, ok := tagged[string(KindMock)]; ok {
		*e = Mock(name)
		return nil
	}
	if name, ok := tagged[string(KindTty)]; ok {
		*e = Tty(name)
		return nil
	}
	return fmt.Errorf("%w: neither Mock nor Tty in %s", ErrBadEndpoint, string(data))
}

// Labels are caller-supplied tags used for control-any matching.
type Labels []string

func (l Labels) String() string {
	return strings.Join(l, ", ")
}

// LabelledEndpointID pairs an endpoint id with the labels the server
// associates with it. Wire form: {"id":{"Mock":"x"},"labels":["a"]}.
type LabelledEndpointID struct {
	ID     EndpointID `json:"id"`
	Labels Labels     `json:"labels,omitempty"`
}

func (l LabelledEndpointID) String() string {
	if len(l.Labels) == 0 {
		return l.ID.String()
	}
	return fmt.Sprintf("%s, labels: %s", l.ID, l.Labels)
}
