// Package ckerr provides the structured error type shared across
// ckindex's components (spec.md §7, "ERROR HANDLING DESIGN").
package ckerr

import "fmt"

// Kind is the closed taxonomy of error kinds spec.md §7 names.
type Kind string

const (
	KindIO              Kind = "Io"
	KindParse           Kind = "Parse"
	KindEmbed           Kind = "Embed"
	KindRerank          Kind = "Rerank"
	KindIndexSchema     Kind = "IndexSchema"
	KindIndexCorruption Kind = "IndexCorruption"
	KindInvalidPath     Kind = "InvalidPath"
	KindInvalidQuery    Kind = "InvalidQuery"
	KindCancelled       Kind = "Cancelled"
	KindInternal        Kind = "Internal"
)

// Error is the structured error type carried through every component
// boundary: a Kind for propagation-policy branching (spec.md §7), plus
// enough context for both an actionable CLI message and a log record.
type Error struct {
	Kind       Kind
	Message    string
	Details    map[string]string
	Cause      error
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by Kind, so errors.Is(err, ckerr.New(KindIO, "", nil)) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetail attaches a key/value detail and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion attaches an actionable suggestion and returns the error for chaining.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates an Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrap creates an Error from an existing error, keeping its message.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return New(kind, err.Error(), err)
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if ae, ok := err.(*Error); ok {
		e = ae
	} else {
		return false
	}
	return e.Kind == kind
}

// KindOf extracts the Kind from err, or KindInternal if err is not a *Error.
func KindOf(err error) Kind {
	if ae, ok := err.(*Error); ok {
		return ae.Kind
	}
	return KindInternal
}

// Cancelled reports whether err represents the cancellation terminal
// state (spec.md §7: "Cancellation is never an error to the caller").
func Cancelled(err error) bool {
	return IsKind(err, KindCancelled)
}
