package p11

import (
	"errors"
	"testing"
)

func TestOpenMissingModule(t *testing.T) {
	_, err := Open("/nonexistent/libsofthsm2.so", 0, "1234")
	if !errors.Is(err, ErrHsmUnavailable) {
		t.Fatalf("expected ErrHsmUnavailable, got %v", err)
	}
}

func TestClosedSession(t *testing.T) {
	s := &Pkcs11Session{}
	if _, err := s.Generate(16); !errors.Is(err, ErrHsmClosed) {
		t.Fatalf("expected ErrHsmClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}
