// Package errs provides a mechanism to create or wrap errors with a kind
// that aids callers in deciding how to react without string-matching.
package errs

import (
	"bytes"
	"fmt"
	"runtime"
)

// A Kind classifies a failure from the engine. It mirrors the four error
// kinds the core can surface: a malformed VLQ string, an unreadable or
// version-mismatched snapshot blob, use of an engine after Destroy, and an
// out-of-range id-form accessor.
type Kind int

const (
	Other Kind = iota
	Malformed
	Incompatible
	Destroyed
	OutOfBounds
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case Malformed:
		return "malformed mappings"
	case Incompatible:
		return "incompatible snapshot"
	case Destroyed:
		return "use after destroy"
	case OutOfBounds:
		return "index out of bounds"
	}
	return "unknown error kind"
}

type Error struct {
	Kind Kind
	Err  error
}

func pad(b *bytes.Buffer, s string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(s)
}

func (e *Error) Error() string {
	b := &bytes.Buffer{}
	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		pad(b, ": ")
		b.WriteString(e.Err.Error())
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns just the Err.Error() string, if present, or the Kind
// string description, letting callers avoid the Kind description that
// Error() embeds.
func (e *Error) Message() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Kind != Other {
		return e.Kind.String()
	}
	return "no error"
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == k
}

// E generates an error from any mix of:
//   - a Kind
//   - an existing error
//   - a string and optional formatting verbs, like fmt.Errorf (including
//     support for the %w verb)
//
// The string & format verbs must be last in the arguments, if present.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("no args to errs.E")
	}
	e := &Error{}

	for i, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case error:
			e.Err = arg
		case string:
			e.Err = fmt.Errorf(arg, args[i+1:]...)
			return e
		default:
			_, file, line, _ := runtime.Caller(1)
			return fmt.Errorf("unknown type %T value %v in errs.E call at %v:%v", arg, arg, file, line)
		}
	}

	return e
}
