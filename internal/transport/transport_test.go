package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torsteingrindvik/serial-keel/internal/testutil/testlog"
)

var upgrader = websocket.Upgrader{}

// startEchoServer runs a websocket server that echoes text frames and
// mirrors binary frames back unchanged.
func startEchoServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			messageType, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(messageType, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestValidate(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		uri  string
		want error
	}{
		{"", ErrURIRequired},
		{"   ", ErrURIRequired},
		{"http://localhost:3123", ErrUnsupportedURI},
		{"localhost:3123", ErrUnsupportedURI},
		{"ws://localhost:3123", nil},
		{"wss://keel.example.com:3123", nil},
	}
	for _, tc := range cases {
		err := Config{URI: tc.uri}.Validate()
		if !errors.Is(err, tc.want) {
			t.Fatalf("validate %q: got %v, want %v", tc.uri, err, tc.want)
		}
	}
}

func TestDialRejectsUnsupportedScheme(t *testing.T) {
	testlog.Start(t)
	_, err := Dial(context.Background(), Config{URI: "http://localhost:3123"})
	if !errors.Is(err, ErrUnsupportedURI) {
		t.Fatalf("expected ErrUnsupportedURI, got %v", err)
	}
}

func TestSendReceiveRoundTrip(t *testing.T) {
	testlog.Start(t)
	uri := startEchoServer(t)

	conn, err := Dial(context.Background(), Config{URI: uri})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := conn.Send(`{"Observe":{"Mock":"example"}}`); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := conn.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got != `{"Observe":{"Mock":"example"}}` {
		t.Fatalf("echo got %q", got)
	}
}

func TestReceiveRejectsBinaryFrame(t *testing.T) {
	testlog.Start(t)
	uri := startEchoServer(t)

	conn, err := Dial(context.Background(), Config{URI: uri})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := conn.ws.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	if _, err := conn.Receive(); !errors.Is(err, ErrNonTextFrame) {
		t.Fatalf("expected ErrNonTextFrame, got %v", err)
	}
}

func TestCloseUnblocksReceive(t *testing.T) {
	testlog.Start(t)
	uri := startEchoServer(t)

	conn, err := Dial(context.Background(), Config{URI: uri})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	unblocked := make(chan error, 1)
	go func() {
		_, err := conn.Receive()
		unblocked <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case err := <-unblocked:
		if !errors.Is(err, ErrConnectionClosed) {
			t.Fatalf("expected ErrConnectionClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("receive did not unblock after close")
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("close must be idempotent: %v", err)
	}
}
