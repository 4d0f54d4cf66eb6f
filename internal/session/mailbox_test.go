package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/torsteingrindvik/serial-keel/internal/protocol"
	"github.com/torsteingrindvik/serial-keel/internal/testutil/testlog"
)

func TestMailboxPreservesOrder(t *testing.T) {
	testlog.Start(t)
	mb := newMailbox(protocol.Mock("order"))
	mb.push("one")
	mb.push("two")
	mb.push("three")

	for _, want := range []string{"one", "two", "three"} {
		got, err := mb.pop(time.Second)
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if got != want {
			t.Fatalf("pop got %q, want %q", got, want)
		}
	}
}

func TestMailboxPopWakesOnPush(t *testing.T) {
	testlog.Start(t)
	mb := newMailbox(protocol.Mock("wake"))

	got := make(chan string, 1)
	go func() {
		message, err := mb.pop(5 * time.Second)
		if err != nil {
			got <- "error: " + err.Error()
			return
		}
		got <- message
	}()

	time.Sleep(20 * time.Millisecond)
	mb.push("late")

	if message := <-got; message != "late" {
		t.Fatalf("pop got %q, want %q", message, "late")
	}
}

func TestMailboxPopTimeoutNamesEndpoint(t *testing.T) {
	testlog.Start(t)
	mb := newMailbox(protocol.Tty("/dev/ttyACM1"))
	_, err := mb.pop(50 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "/dev/ttyACM1") {
		t.Fatalf("timeout should name the endpoint: %v", err)
	}
}

func TestMailboxFailUnblocksPop(t *testing.T) {
	testlog.Start(t)
	mb := newMailbox(protocol.Mock("doomed"))
	terminal := errors.New("session over")

	got := make(chan error, 1)
	go func() {
		_, err := mb.pop(5 * time.Second)
		got <- err
	}()

	time.Sleep(20 * time.Millisecond)
	mb.fail(terminal)

	if err := <-got; !errors.Is(err, terminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
}

func TestMailboxDrainsBufferedBeforeFailing(t *testing.T) {
	testlog.Start(t)
	mb := newMailbox(protocol.Mock("drain"))
	terminal := errors.New("session over")
	mb.push("kept")
	mb.fail(terminal)

	// Messages buffered before the failure stay readable.
	got, err := mb.pop(time.Second)
	if err != nil {
		t.Fatalf("pop buffered: %v", err)
	}
	if got != "kept" {
		t.Fatalf("pop got %q, want %q", got, "kept")
	}
	if _, err := mb.pop(time.Second); !errors.Is(err, terminal) {
		t.Fatalf("expected terminal error after drain, got %v", err)
	}

	// Pushes after the failure are dropped, and failing again is a no-op.
	mb.push("lost")
	mb.fail(errors.New("second"))
	if _, err := mb.pop(time.Second); !errors.Is(err, terminal) {
		t.Fatalf("expected original terminal error, got %v", err)
	}
}
