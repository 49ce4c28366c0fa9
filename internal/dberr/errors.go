// Package dberr classifies the failures surfaced by the storage engine.
//
// Every error leaving the pager, the node codec or the tree carries one of
// three kinds: I/O, corruption or validation. Callers branch on the kind
// with IsIO, IsCorruption and IsValidation; the underlying cause is kept
// for errors.Is / errors.As and carries a stack trace from pkg/errors.
package dberr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the failure class of an Error.
type Kind uint8

const (
	KindIO Kind = iota + 1
	KindCorruption
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindCorruption:
		return "corruption"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a classified engine failure.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "pager.read_page"
	err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("amsdb: %s: %v", e.Kind, e.err)
	}
	return fmt.Sprintf("amsdb: %s: %s: %v", e.Op, e.Kind, e.err)
}

// Unwrap implements the errors.Wrapper interface.
func (e *Error) Unwrap() error {
	return e.err
}

// IO wraps err as an I/O failure. A nil err yields nil.
func IO(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindIO, Op: op, err: errors.WithStack(err)}
}

// Corruption wraps err as a corruption failure. A nil err yields nil.
func Corruption(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindCorruption, Op: op, err: errors.WithStack(err)}
}

// Corruptionf builds a corruption failure from a message.
func Corruptionf(op, format string, args ...any) error {
	return &Error{Kind: KindCorruption, Op: op, err: errors.Errorf(format, args...)}
}

// Validation wraps err as a validation failure. A nil err yields nil.
func Validation(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindValidation, Op: op, err: errors.WithStack(err)}
}

// Validationf builds a validation failure from a message.
func Validationf(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, err: errors.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or zero if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsIO returns a boolean indicating whether the error is an I/O failure.
func IsIO(err error) bool {
	return err != nil && KindOf(err) == KindIO
}

// IsCorruption returns a boolean indicating whether the error is a corruption failure.
func IsCorruption(err error) bool {
	return err != nil && KindOf(err) == KindCorruption
}

// IsValidation returns a boolean indicating whether the error is a validation failure.
func IsValidation(err error) bool {
	return err != nil && KindOf(err) == KindValidation
}
