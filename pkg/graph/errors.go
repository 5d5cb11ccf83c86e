// Package graph provides a rate-limit aware client for the Microsoft Graph
// REST API, covering the Teams, Planner and SharePoint drive endpoints the
// provisioning pipeline depends on.
package graph

import (
	"errors"
	"fmt"
)

// ErrRetryExhausted is returned when a call stays throttled for all
// allowed attempts.
var ErrRetryExhausted = errors.New("rate limit retry budget exhausted")

// StatusError represents a non-2xx response from the Graph API. The status
// code is preserved so callers can classify the failure (conflict, missing
// capability, not found).
type StatusError struct {
	// Code is the HTTP status code of the response.
	Code int

	// Method and Endpoint identify the failing call.
	Method   string
	Endpoint string

	// Body is a truncated copy of the response body for diagnostics.
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Endpoint, e.Code, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Endpoint, e.Code)
}

// IsStatus reports whether err is a StatusError carrying one of the given
// status codes.
func IsStatus(err error, codes ...int) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.Code == c {
			return true
		}
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not a
// StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
