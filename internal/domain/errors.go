package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the disclosure policy applied at the
// pipeline boundary. The sanitizer switches on this tag, not on the
// message text.
type Kind string

const (
	// KindValidation marks malformed or out-of-range caller input.
	// Safe to disclose; never triggers an outbound call.
	KindValidation Kind = "validation"

	// KindConfiguration marks missing or invalid startup configuration.
	// Safe to disclose.
	KindConfiguration Kind = "configuration"

	// KindQuery marks a failure of the downstream query capability
	// (auth, network, timeout, malformed response). Never disclosed.
	KindQuery Kind = "query"
)

// Error is the tagged error type carried through the invocation pipeline.
// Message is the user-facing text for disclosure-safe kinds; Err holds the
// wrapped cause for logging.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewValidationError returns a validation-kind error. The message must be
// written for the caller: it is returned verbatim.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewConfigurationError returns a configuration-kind error.
func NewConfigurationError(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewQueryError wraps a downstream failure. The message is for operators;
// callers only ever see the generic replacement.
func NewQueryError(message string, cause error) *Error {
	return &Error{Kind: KindQuery, Message: message, Err: cause}
}

// KindOf returns the kind tag of err, or "" if err carries no tag.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
