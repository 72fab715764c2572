// Package kdiag holds compiler diagnostics.
//
// A Diagnostic carries a severity, a message and an opaque source location
// handed in by the front end. Only Error-level diagnostics fail a
// compilation; the others are advisory.
package kdiag

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/multierr"
)

// Level is the severity of a diagnostic.
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelNote
	LevelHelp
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "Error"
	case LevelWarning:
		return "Warning"
	case LevelNote:
		return "Note"
	case LevelHelp:
		return "Help"
	default:
		return "Unknown"
	}
}

// SourceSpan is a convenience location for front ends that read files.
// kdiag never looks inside a span, it only prints it.
type SourceSpan struct {
	File   string
	Line   int
	Column int
}

func (s SourceSpan) String() string {
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
}

// Diagnostic is a single compiler message.
type Diagnostic struct {
	Level   Level
	Message string
	Span    fmt.Stringer
}

// Errorf creates an Error-level diagnostic.
func Errorf(span fmt.Stringer, format string, args ...any) Diagnostic {
	return Diagnostic{Level: LevelError, Message: fmt.Sprintf(format, args...), Span: span}
}

// Warnf creates a Warning-level diagnostic.
func Warnf(span fmt.Stringer, format string, args ...any) Diagnostic {
	return Diagnostic{Level: LevelWarning, Message: fmt.Sprintf(format, args...), Span: span}
}

// Helpf creates a Help-level diagnostic.
func Helpf(span fmt.Stringer, format string, args ...any) Diagnostic {
	return Diagnostic{Level: LevelHelp, Message: fmt.Sprintf(format, args...), Span: span}
}

// IsError reports whether the diagnostic blocks compilation.
func (d Diagnostic) IsError() bool {
	return d.Level == LevelError
}

func (d Diagnostic) location() string {
	if d.Span == nil {
		return "<unknown>"
	}
	return d.Span.String()
}

// String renders the diagnostic as "{Level}: {message}\n  --> {location}".
func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s\n  --> %s", d.Level, d.Message, d.location())
}

func (d Diagnostic) Error() string {
	return d.String()
}

// Diagnostics is an ordered list of diagnostics.
type Diagnostics []Diagnostic

// HasErrors reports whether any diagnostic is Error-level.
func (ds Diagnostics) HasErrors() bool {
	for _, d := range ds {
		if d.IsError() {
			return true
		}
	}
	return false
}

// Errors returns the Error-level diagnostics.
func (ds Diagnostics) Errors() Diagnostics {
	return ds.filter(true)
}

// Warnings returns every diagnostic below Error level.
func (ds Diagnostics) Warnings() Diagnostics {
	return ds.filter(false)
}

func (ds Diagnostics) filter(errs bool) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.IsError() == errs {
			out = append(out, d)
		}
	}
	return out
}

// Err combines the Error-level diagnostics into a single error, or returns
// nil if there are none. The individual diagnostics can be recovered with
// multierr.Errors.
func (ds Diagnostics) Err() error {
	var err error
	for _, d := range ds.Errors() {
		err = multierr.Append(err, d)
	}
	if err == nil {
		return nil
	}
	return &CompileError{Diagnostics: ds, err: err}
}

// Render writes every diagnostic, separated by blank lines.
func (ds Diagnostics) Render(w io.Writer) error {
	for i, d := range ds {
		if i > 0 {
			if _, err := io.WriteString(w, "\n\n"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, d.String()); err != nil {
			return err
		}
	}
	if len(ds) > 0 {
		_, err := io.WriteString(w, "\n")
		return err
	}
	return nil
}

func (ds Diagnostics) String() string {
	var sb strings.Builder
	_ = ds.Render(&sb)
	return sb.String()
}

// CompileError is returned when compilation produced Error-level
// diagnostics. It carries the full list, including advisories.
type CompileError struct {
	Diagnostics Diagnostics
	err         error
}

func (e *CompileError) Error() string {
	n := len(e.Diagnostics.Errors())
	return fmt.Sprintf("compilation failed with %d error(s): %v", n, e.err)
}

func (e *CompileError) Unwrap() []error {
	return multierr.Errors(e.err)
}

// FromError extracts the diagnostics of a compile error.
func FromError(err error) (Diagnostics, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Diagnostics, true
	}
	return nil, false
}
