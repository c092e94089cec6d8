// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"errors"
	"fmt"
	"strings"
)

// APIError reports a failed completion request: transport failure,
// non-success status, empty response, or timeout.
type APIError struct {
	Message string
	Cause   error
}

func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("API call failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("API call failed: %s", e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// ParseError reports a response that is not a JSON object or does not
// match the template schema.
type ParseError struct {
	Message string
	Cause   error

	// Response is the raw model output, truncated.
	Response string

	// Violations lists schema violations as "field: description".
	Violations []string
}

func (e *ParseError) Error() string {
	msg := "parse error: " + e.Message
	if len(e.Violations) > 0 {
		msg += ": " + strings.Join(e.Violations, "; ")
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ErrorKind classifies a per-record failure for logs and the ledger. It
// returns the empty string for errors of neither kind.
func ErrorKind(err error) Status {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return StatusAPIError
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return StatusParseError
	}
	return ""
}
