package transport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/torsteingrindvik/serial-keel/internal/testutil/testlog"
	"github.com/torsteingrindvik/serial-keel/internal/testutil/tlstest"
)

func TestDialTLSWithPrivateAuthority(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	authority := tlstest.NewAuthority(t, dir, "keel-test-ca")
	serverTLS := authority.ServerTLS(t, "localhost",
		[]string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")})

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"Ok":{"Sync":"WriteOk"}}`))
	}))
	srv.TLS = serverTLS
	srv.StartTLS()
	t.Cleanup(srv.Close)

	uri := "wss" + strings.TrimPrefix(srv.URL, "https")
	conn, err := Dial(context.Background(), Config{
		URI: uri,
		TLS: TLSConfig{
			CAFile:     authority.CAFile(),
			ServerName: "localhost",
		},
	})
	if err != nil {
		t.Fatalf("dial wss: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	got, err := conn.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if got != `{"Ok":{"Sync":"WriteOk"}}` {
		t.Fatalf("unexpected frame: %q", got)
	}
}

func TestDialTLSRejectsUnknownAuthority(t *testing.T) {
	testlog.Start(t)

	dir := t.TempDir()
	authority := tlstest.NewAuthority(t, dir, "keel-test-ca")
	serverTLS := authority.ServerTLS(t, "localhost",
		[]string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")})

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.TLS = serverTLS
	srv.StartTLS()
	t.Cleanup(srv.Close)

	// No CA bundle configured, so the private authority is untrusted.
	uri := "wss" + strings.TrimPrefix(srv.URL, "https")
	if _, err := Dial(context.Background(), Config{URI: uri}); err == nil {
		t.Fatalf("dial should fail against an untrusted authority")
	}
}
