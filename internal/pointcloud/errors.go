package pointcloud

import (
	"fmt"
	"strings"
)

// Kind classifies a point-cloud error. None of the kinds are transient:
// every error is fatal at its origin and is never retried.
type Kind string

const (
	KindSchema             Kind = "schema"              // target dimension absent, frozen layout
	KindIncompatibleLayout Kind = "incompatible_layout" // fast copy across different layouts
	KindFieldAccess        Kind = "field_access"        // accessor type does not match the field kind
	KindGeometryLoad       Kind = "geometry_load"       // source open, layer, column or geometry type
	KindReprojection       Kind = "reprojection"        // polygon transform failure
	KindIO                 Kind = "io"                  // stream open, seek or read failure
)

// Sentinels for errors.Is. Matching is on Kind only.
var (
	ErrSchema             = &Error{Kind: KindSchema}
	ErrIncompatibleLayout = &Error{Kind: KindIncompatibleLayout}
	ErrFieldAccess        = &Error{Kind: KindFieldAccess}
	ErrGeometryLoad       = &Error{Kind: KindGeometryLoad}
	ErrReprojection       = &Error{Kind: KindReprojection}
	ErrIO                 = &Error{Kind: KindIO}
)

// Error is the structured error returned by the point-cloud packages.
type Error struct {
	Kind   Kind
	Op     string // operation, e.g. "overlay.ready" or "iterator.read"
	Detail string
	Cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Errorf builds an *Error of the given kind with a formatted detail.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around cause.
// A nil cause yields a nil error.
func Wrap(kind Kind, op string, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...), Cause: cause}
}
