package template

import (
	"errors"
	"fmt"
)

// Compile-time error kinds. Errors returned by the compiler wrap exactly one
// of these, so callers can match with errors.Is. Compilation is fail-fast:
// the first error aborts the whole compile and no partial render is returned.
var (
	ErrUnknownTag         = errors.New("unknown tag")
	ErrUnexpectedText     = errors.New("unexpected text")
	ErrUndefinedVariable  = errors.New("undefined variable")
	ErrMissingArgument    = errors.New("missing argument")
	ErrUnexpectedArgument = errors.New("unexpected argument")
)

// Error is a template compile error. It names the offending tag and the scope
// it occurred in.
type Error struct {
	Kind   error
	Scope  ScopeID
	Tag    string
	Detail string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%v in %s scope", e.Kind, e.Scope)
	if e.Tag != "" {
		msg = fmt.Sprintf("<%s>: %s", e.Tag, msg)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Kind }

func compileErr(kind error, scope ScopeID, tag, format string, args ...any) *Error {
	return &Error{Kind: kind, Scope: scope, Tag: tag, Detail: fmt.Sprintf(format, args...)}
}
