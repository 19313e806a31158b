package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a failure reported by the remote API: a non-2xx response or a
// 2xx envelope with success=false.
type Error struct {
	Operation  string
	StatusCode int
	Message    string
	ErrorCode  string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.ErrorCode != "" {
		return fmt.Sprintf("%s: %d %s (%s)", e.Operation, e.StatusCode, msg, e.ErrorCode)
	}
	return fmt.Sprintf("%s: %d %s", e.Operation, e.StatusCode, msg)
}

// Message returns the server-provided message carried by err, or fallback
// when err is not an API error or the server sent none.
func Message(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// IsUnauthorized reports whether err is a 401 from the remote API.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}
