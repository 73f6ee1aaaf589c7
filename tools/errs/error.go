package errs

import (
	"bytes"
	"fmt"

	pkgerr "github.com/pkg/errors"
)

// Error is a plain error that can be re-wrapped with a stack.
type Error interface {
	error
	Is(err error) bool
	Wrap() error
	WrapMsg(msg string, kv ...any) error
}

// New builds an Error whose text is msg followed by the kv pairs.
func New(msg string, kv ...any) Error {
	return &errorString{s: toString(msg, kv)}
}

type errorString struct {
	s string
}

func (e *errorString) Error() string { return e.s }

func (e *errorString) Is(err error) bool {
	if err == nil {
		return false
	}
	t, ok := err.(*errorString)
	return ok && t.s == e.s
}

func (e *errorString) Wrap() error {
	return pkgerr.WithStack(e)
}

func (e *errorString) WrapMsg(msg string, kv ...any) error {
	return WrapMsg(e, msg, kv...)
}

// ErrWrapper keeps the original error reachable while adding context text.
type ErrWrapper interface {
	Is(err error) bool
	Wrap() error
	Unwrap() error
	WrapMsg(msg string, kv ...any) error
	error
}

func NewErrorWrapper(err error, s string) ErrWrapper {
	return &errorWrapper{error: err, s: s}
}

type errorWrapper struct {
	error
	s string
}

func (e *errorWrapper) Is(err error) bool {
	if err == nil {
		return false
	}
	t, ok := err.(*errorWrapper)
	return ok && t.s == e.s
}

func (e *errorWrapper) Error() string {
	return e.s + ": " + e.error.Error()
}

func (e *errorWrapper) Wrap() error {
	return pkgerr.WithStack(e)
}

func (e *errorWrapper) Unwrap() error {
	return e.error
}

func (e *errorWrapper) WrapMsg(msg string, kv ...any) error {
	return WrapMsg(e, msg, kv...)
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var buf bytes.Buffer
	buf.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if buf.Len() > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(fmt.Sprint(kv[i]))
		buf.WriteString("=")
		if i+1 < len(kv) {
			buf.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			buf.WriteString("MISSING")
		}
	}
	return buf.String()
}
