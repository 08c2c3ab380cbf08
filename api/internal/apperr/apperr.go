package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies where a failure came from and how the pipeline reacts to it.
type Kind int

const (
	// Transport: network, timeout or non-2xx answer from an external backend.
	Transport Kind = iota + 1
	// Parse: the backend answered but the payload had no usable structured data.
	Parse
	// Validation: required input or configuration is missing. Always fatal.
	Validation
	// Partial: a downstream stage failed after diagnosis succeeded. Never fatal.
	Partial
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case Parse:
		return "parse"
	case Validation:
		return "validation"
	case Partial:
		return "partial"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Transportf(op, format string, args ...any) *Error {
	return New(Transport, op, fmt.Errorf(format, args...))
}

func Parsef(op, format string, args ...any) *Error {
	return New(Parse, op, fmt.Errorf(format, args...))
}

func Validationf(op, format string, args ...any) *Error {
	return New(Validation, op, fmt.Errorf(format, args...))
}

// Is reports whether any error in err's chain is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
