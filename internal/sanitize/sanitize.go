// Package sanitize decides which error messages may cross the boundary to
// an untrusted caller, and guarantees that full detail always reaches the
// operational log regardless of what the caller sees.
package sanitize

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/observelabs/logsearch-mcp/internal/domain"
)

// GenericMessage replaces every error that is not disclosure-safe. No
// stack trace, credential hint or internal identifier crosses this
// boundary.
const GenericMessage = "An error occurred while processing your request. Please try again later."

// safePatterns is a legacy fallback for errors that arrive without a kind
// tag (e.g. from argument coercion in third-party protocol code). Every
// first-party validation failure is tagged, so this set stays small.
var safePatterns = []string{
	"is required",
	"must be",
	"must not be empty",
	"invalid argument",
}

// Sanitizer produces user-facing error messages and emits full detail to
// the operational log sink.
type Sanitizer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Sanitizer {
	return &Sanitizer{logger: logger.With("component", "sanitize")}
}

// Sanitize returns the message to show the caller for err. The full error,
// its kind and the context label are always logged, even when the returned
// message is generic. The caller is responsible for keeping sensitive
// values (such as the search term) out of err and contextLabel.
func (s *Sanitizer) Sanitize(err error, contextLabel string) string {
	kind := domain.KindOf(err)

	s.logger.Error("Tool call failed.",
		slog.String("context", contextLabel),
		slog.String("kind", string(kind)),
		slog.Any("error", err),
	)

	switch kind {
	case domain.KindValidation, domain.KindConfiguration:
		// Disclose the tagged message only, never a wrapped cause.
		var de *domain.Error
		if errors.As(err, &de) {
			return de.Message
		}
		return err.Error()
	case domain.KindQuery:
		return GenericMessage
	}

	// Untagged error: message-text fallback for input complaints raised
	// outside this module's control.
	msg := strings.ToLower(err.Error())
	for _, p := range safePatterns {
		if strings.Contains(msg, p) {
			return err.Error()
		}
	}
	return GenericMessage
}
