package daemonize

import (
	"errors"
	"os"
	"testing"
)

func TestParseHandshakeEmptyMeansReady(t *testing.T) {
	if err := parseHandshake(nil); err != nil {
		t.Fatalf("want nil, got %v", err)
	}
	if err := parseHandshake([]byte("  \n")); err != nil {
		t.Fatalf("want nil, got %v", err)
	}
}

func TestParseHandshakeErrPrefixReturnsError(t *testing.T) {
	err := parseHandshake([]byte("ERR: bind: address already in use"))
	if err == nil {
		t.Fatal("want error, got nil")
	}
	if got := err.Error(); got == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestSignalReadyRoundTrip(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	SignalReady(w)

	buf := make([]byte, 16)
	n, _ := r.Read(buf)
	if err := parseHandshake(buf[:n]); err != nil {
		t.Fatalf("want nil after SignalReady, got %v", err)
	}
	r.Close()
}

func TestSignalFailedRoundTrip(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	SignalFailed(w, errors.New("bind failed"))

	buf := make([]byte, 256)
	n, _ := r.Read(buf)
	if err := parseHandshake(buf[:n]); err == nil {
		t.Fatal("want error after SignalFailed, got nil")
	}
	r.Close()
}
