// Package errs defines kiln's error taxonomy (spec.md §5): a single *Error
// type discriminated by Kind, carrying the template call-stack assembled
// during unwind. Grounded on the teacher's runtime/error.go (RuntimeError's
// Type/Message/TemplateName/Line/Column/Context/Suggestion fields), with
// stack-trace wrapping switched onto github.com/pkg/errors: Wrap stores its
// cause through errors.WithStack, so that cause (reached via Unwrap) prints
// the Go-level call stack under the %+v verb — a concern the teacher's plain
// fmt.Errorf-based errors never carried.
package errs

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind discriminates the error taxonomy spec.md §5 names.
type Kind int

const (
	KindLex Kind = iota
	KindParse
	KindTemplateNotFound
	KindUndefined
	KindName
	KindType
	KindAttribute
	KindArgument
	KindZeroDivision
	KindFilter
	KindSecurity
	KindRecursionLimit
)

func (k Kind) String() string {
	switch k {
	case KindLex:
		return "LexError"
	case KindParse:
		return "ParseError"
	case KindTemplateNotFound:
		return "TemplateNotFound"
	case KindUndefined:
		return "UndefinedError"
	case KindName:
		return "NameError"
	case KindType:
		return "TypeError"
	case KindAttribute:
		return "AttributeError"
	case KindArgument:
		return "ArgumentError"
	case KindZeroDivision:
		return "ZeroDivisionError"
	case KindFilter:
		return "FilterError"
	case KindSecurity:
		return "SecurityError"
	case KindRecursionLimit:
		return "RecursionLimit"
	default:
		return "Error"
	}
}

// Frame is one entry in the template call-stack recorded as rendering
// unwinds through includes, extends, imports, and macro calls.
type Frame struct {
	Template string
	Line     int
	Context  string // e.g. "in macro 'nav'", "included from"
}

// Error is the single error type every kiln subsystem returns, carrying a
// Kind, source position, and the assembled template call-stack.
type Error struct {
	Kind     Kind
	Message  string
	Template string
	Line     int

	Frames []Frame
	cause  error
}

func New(kind Kind, template string, line int, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Template: template, Line: line}
}

// Wrap attaches kiln's error shape to an underlying error, storing it wrapped
// by errors.WithStack. The cause is reachable through Unwrap (errors.Unwrap,
// errors.As), and formatting it with %+v prints the Go stack trace; *Error
// itself has no Cause or Format method.
func Wrap(kind Kind, template string, line int, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind: kind, Message: fmt.Sprintf(format, args...), Template: template, Line: line,
		cause: errors.WithStack(cause),
	}
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Template != "" {
		fmt.Fprintf(&sb, " in %q", e.Template)
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, " at line %d", e.Line)
	}
	for i := len(e.Frames) - 1; i >= 0; i-- {
		f := e.Frames[i]
		fmt.Fprintf(&sb, "\n  from %s:%d", f.Template, f.Line)
		if f.Context != "" {
			fmt.Fprintf(&sb, " (%s)", f.Context)
		}
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.cause }

// PushFrame records one level of the template call-stack and returns e for
// chaining, matching the unwind order: innermost frame pushed first.
func (e *Error) PushFrame(template string, line int, context string) *Error {
	e.Frames = append(e.Frames, Frame{Template: template, Line: line, Context: context})
	return e
}

func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
