package exitcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	if KindOf(nil) != OK {
		t.Fatal("nil error must be OK")
	}
	if KindOf(errors.New("boom")) != Internal {
		t.Fatal("unkinded error must be Internal")
	}
	err := Errorf(HashMismatch, "digest differs")
	if KindOf(err) != HashMismatch {
		t.Fatalf("KindOf = %v", KindOf(err))
	}
	wrapped := fmt.Errorf("validate: %w", err)
	if KindOf(wrapped) != HashMismatch {
		t.Fatal("kind must survive fmt.Errorf wrapping")
	}
}

func TestWrapPreservesExistingKind(t *testing.T) {
	err := Errorf(MissingDataRef, "no such ref")
	if got := Wrap(Internal, err); KindOf(got) != MissingDataRef {
		t.Fatalf("Wrap must not override an existing kind, got %v", KindOf(got))
	}
	if Wrap(Internal, nil) != nil {
		t.Fatal("Wrap(nil) must be nil")
	}
	plain := errors.New("disk on fire")
	if KindOf(Wrap(Internal, plain)) != Internal {
		t.Fatal("Wrap must attach the kind to plain errors")
	}
}

func TestFromError(t *testing.T) {
	cases := map[Kind]int{
		OK:                0,
		Usage:             1,
		ContractViolation: 2,
		HashMismatch:      3,
		OutputMismatch:    4,
		Internal:          5,
		MissingDataRef:    6,
	}
	for kind, want := range cases {
		var err error
		if kind != OK {
			err = Errorf(kind, "x")
		}
		if got := FromError(err); got != want {
			t.Errorf("FromError(%v) = %d, want %d", kind, got, want)
		}
	}
}
