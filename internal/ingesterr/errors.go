// Package ingesterr defines the classified errors an ingestion run can end with.
package ingesterr

import (
	"errors"
	"fmt"
)

// Kind is the category of an ingestion error.
type Kind string

const (
	// KindFormatUnsupported is an unrecognized file extension.
	KindFormatUnsupported Kind = "FormatUnsupported"
	// KindEncodingExhausted means every entry of the encoding cascade failed.
	KindEncodingExhausted Kind = "EncodingExhausted"
	// KindEmptyOrTooSmall is an input with too few rows or columns. The file is skipped.
	KindEmptyOrTooSmall Kind = "EmptyOrTooSmallInput"
	// KindFileLocked means the source is held open by another process.
	KindFileLocked Kind = "FileLocked"
	// KindPrimaryKeyMissing degrades the merge to append-only.
	KindPrimaryKeyMissing Kind = "PrimaryKeyMissing"
	// KindSchemaTypeConflict is a column mixing numbers and text.
	KindSchemaTypeConflict Kind = "SchemaTypeConflict"
	KindNotFound           Kind = "NotFound"
	KindCorrupt            Kind = "Corrupt"
	KindPersist            Kind = "Persist"
	KindInternal           Kind = "Internal"
)

// Error is a classified error with an optional user-facing hint.
type Error struct {
	Kind    Kind
	Path    string
	Message string
	Hint    string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: k})
// works as a kind check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Path == ""
}

// WithHint sets the hint and returns e for chaining.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

func New(kind Kind, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields a nil error.
func Wrap(err error, kind Kind, path, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Path: path, Message: message, Cause: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HintOf returns the hint attached anywhere in err's chain.
func HintOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Hint
	}
	return ""
}

// Skippable reports whether the error only skips the file.
func Skippable(err error) bool {
	return IsKind(err, KindEmptyOrTooSmall)
}
