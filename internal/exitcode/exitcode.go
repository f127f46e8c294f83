// Package exitcode defines the typed failure taxonomy for replay-pack
// operations. Failures travel through the program as *Error values; they
// become numeric process exit codes only at the CLI boundary.
package exitcode

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. The numeric values are the CLI exit-code
// contract and must not be reordered.
type Kind int

const (
	OK                Kind = 0
	Usage             Kind = 1
	ContractViolation Kind = 2
	HashMismatch      Kind = 3
	OutputMismatch    Kind = 4
	Internal          Kind = 5
	MissingDataRef    Kind = 6
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case Usage:
		return "usage"
	case ContractViolation:
		return "contract_violation"
	case HashMismatch:
		return "hash_mismatch"
	case OutputMismatch:
		return "output_mismatch"
	case MissingDataRef:
		return "missing_dataref"
	default:
		return "internal"
	}
}

// Error pairs a failure kind with its cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an Error of the given kind, formatting like fmt.Errorf.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to an existing error. A nil err returns nil; an err
// that already carries a kind is returned unchanged.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the failure kind from an error. Nil is OK; errors without
// an attached kind are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// FromError converts an error to a process exit code.
func FromError(err error) int {
	return int(KindOf(err))
}
