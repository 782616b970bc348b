package domain

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validation bounds for the searchLogs tool input.
const (
	MaxTermLength = 100
	MinLimit      = 1
	MaxLimit      = 1000
	DefaultLimit  = 50

	// DefaultDuration is the lookback window applied when the caller
	// omits one.
	DefaultDuration = "P7D"
)

var (
	termPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

	// ISO-8601 durations with day and/or hour components, e.g. "P7D",
	// "PT12H", "P1DT6H".
	durationPattern = regexp.MustCompile(`^P(\d+D)?(T\d+H)?$`)
)

// SearchRequest is a fully validated tool input. None of its fields reach
// the query capability unless all of them passed validation.
type SearchRequest struct {
	SearchTerm string
	Limit      int
	Duration   string
}

// ParseSearchRequest validates the raw tool arguments and applies
// defaults. Any failure is a validation-kind error whose message is safe
// to return to the caller verbatim; an invalid field fails the whole
// request.
func ParseSearchRequest(args map[string]any) (*SearchRequest, error) {
	raw, ok := args["searchTerm"].(string)
	if !ok {
		return nil, NewValidationError("searchTerm is required and must be a string")
	}

	term := strings.TrimSpace(raw)
	if term == "" {
		return nil, NewValidationError("searchTerm must not be empty")
	}
	// The charset gate runs first: a multibyte term can exceed the
	// length bound in bytes while staying within it in characters, and
	// the disclosed reason has to name the actual problem.
	if !termPattern.MatchString(term) {
		return nil, NewValidationError("searchTerm may only contain letters, digits, hyphens, underscores and dots")
	}
	if utf8.RuneCountInString(term) > MaxTermLength {
		return nil, NewValidationError("searchTerm must be between 1 and %d characters", MaxTermLength)
	}

	limit := DefaultLimit
	if v, present := args["limit"]; present {
		n, ok := intArg(v)
		if !ok || n < MinLimit || n > MaxLimit {
			return nil, NewValidationError("limit must be an integer between %d and %d", MinLimit, MaxLimit)
		}
		limit = n
	}

	duration := DefaultDuration
	if v, present := args["duration"]; present {
		s, ok := v.(string)
		if !ok || s == "P" || !durationPattern.MatchString(s) {
			return nil, NewValidationError("duration must be an ISO-8601 duration with day and/or hour components, such as \"P7D\" or \"PT12H\"")
		}
		duration = s
	}

	return &SearchRequest{SearchTerm: term, Limit: limit, Duration: duration}, nil
}

// intArg coerces a JSON-decoded numeric argument to an int. Rejects
// fractional values.
func intArg(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
