package xerrors

import (
	"errors"
	"testing"
)

func TestWrapPreservesChain(t *testing.T) {
	base := errors.New("base")
	err := Wrap(base, "context")
	if err.Error() != "context: base" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error lost the chain")
	}
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) != nil")
	}
}

func TestWrapfFormats(t *testing.T) {
	base := errors.New("base")
	err := Wrapf(base, "op %s failed after %d tries", "sync", 3)
	if err.Error() != "op sync failed after 3 tries: base" {
		t.Errorf("Error() = %q", err.Error())
	}
	if Wrapf(nil, "x") != nil {
		t.Error("Wrapf(nil) != nil")
	}
}

func TestNewCapturesStack(t *testing.T) {
	err := New("boom")
	type hasStack interface{ StackPCs() []uintptr }
	var hs hasStack
	if !errors.As(err, &hs) || len(hs.StackPCs()) == 0 {
		t.Error("New did not capture a stack")
	}
}

func TestEnsureTrace(t *testing.T) {
	if EnsureTrace(nil) != nil {
		t.Error("EnsureTrace(nil) != nil")
	}

	plain := errors.New("plain")
	traced := EnsureTrace(plain)
	if traced == plain {
		t.Error("EnsureTrace did not add a stack to a bare error")
	}

	// already-traced errors pass through unchanged
	if again := EnsureTrace(traced); again != traced {
		t.Error("EnsureTrace re-wrapped a traced error")
	}
	wrapped := Wrap(New("inner"), "outer")
	if EnsureTrace(wrapped) != wrapped {
		t.Error("EnsureTrace re-wrapped a chain that already carries a stack")
	}
}

func TestWrapRecordsPC(t *testing.T) {
	err := Wrap(errors.New("x"), "y")
	w, ok := err.(*wrap)
	if !ok {
		t.Fatalf("Wrap returned %T", err)
	}
	if w.PC() == 0 {
		t.Error("wrap site PC not recorded")
	}
}
