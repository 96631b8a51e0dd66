package proxy

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"
)

// startRelay runs a relay between the inner ends of two pipes and
// returns a channel carrying the close reason.
func startRelay(t *testing.T, client, target net.Conn, idleTimeout time.Duration) <-chan string {
	t.Helper()
	pool := newBufferPool(1024)
	done := make(chan string, 1)
	go func() {
		done <- newRelay(client, target, idleTimeout, pool).run()
	}()
	return done
}

func TestRelayRoundTrip(t *testing.T) {
	clientOuter, clientInner := net.Pipe()
	targetOuter, targetInner := net.Pipe()
	done := startRelay(t, clientInner, targetInner, 5*time.Second)

	payload := []byte("hello through the tunnel")
	go func() {
		_, _ = clientOuter.Write(payload)
	}()

	got := make([]byte, len(payload))
	if _, err := io.ReadFull(targetOuter, got); err != nil {
		t.Fatalf("target read failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("target received %q, want %q", got, payload)
	}

	reply := []byte("hello back")
	go func() {
		_, _ = targetOuter.Write(reply)
	}()

	got = make([]byte, len(reply))
	if _, err := io.ReadFull(clientOuter, got); err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if !bytes.Equal(got, reply) {
		t.Fatalf("client received %q, want %q", got, reply)
	}

	_ = clientOuter.Close()
	select {
	case reason := <-done:
		if reason != closeReasonEOF {
			t.Errorf("close reason = %q, want %q", reason, closeReasonEOF)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("relay did not terminate after client close")
	}
}

func TestRelayClosesBothOnEOF(t *testing.T) {
	clientOuter, clientInner := net.Pipe()
	targetOuter, targetInner := net.Pipe()
	done := startRelay(t, clientInner, targetInner, 5*time.Second)

	_ = targetOuter.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("relay did not terminate after target close")
	}

	// The relay must have closed its client side too.
	_ = clientOuter.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	if _, err := clientOuter.Read(buf); err == nil {
		t.Errorf("expected client side to be closed")
	}
}

func TestRelayIdleTimeout(t *testing.T) {
	clientOuter, clientInner := net.Pipe()
	targetOuter, targetInner := net.Pipe()
	defer clientOuter.Close()
	defer targetOuter.Close()

	start := time.Now()
	done := startRelay(t, clientInner, targetInner, 150*time.Millisecond)

	select {
	case reason := <-done:
		if reason != closeReasonIdle {
			t.Errorf("close reason = %q, want %q", reason, closeReasonIdle)
		}
		if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
			t.Errorf("relay terminated after %v, before the idle window", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("idle relay did not terminate")
	}
}

func TestRelayActivityExtendsIdleWindow(t *testing.T) {
	clientOuter, clientInner := net.Pipe()
	targetOuter, targetInner := net.Pipe()
	done := startRelay(t, clientInner, targetInner, 300*time.Millisecond)

	// Traffic at half the idle window keeps the relay alive well past
	// a single window.
	deadline := time.Now().Add(900 * time.Millisecond)
	buf := make([]byte, 4)
	for time.Now().Before(deadline) {
		select {
		case reason := <-done:
			t.Fatalf("relay terminated early (%s)", reason)
		default:
		}
		go func() { _, _ = clientOuter.Write([]byte("ping")) }()
		if _, err := io.ReadFull(targetOuter, buf); err != nil {
			t.Fatalf("target read failed: %v", err)
		}
		time.Sleep(150 * time.Millisecond)
	}

	_ = clientOuter.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("relay did not terminate after close")
	}
}

func TestRelayWriteFailure(t *testing.T) {
	clientOuter, clientInner := net.Pipe()
	targetOuter, targetInner := net.Pipe()
	done := startRelay(t, clientInner, targetInner, 5*time.Second)

	// Close the target's outer end, then push client data: the relay's
	// write toward the target fails.
	_ = targetOuter.Close()
	go func() { _, _ = clientOuter.Write([]byte("doomed")) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("relay did not terminate on write failure")
	}
}
