package api

import (
	"fmt"
	"net/http"
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	statusCode int
	method     string
	path       string
	body       string
}

// NewStatusError creates a StatusError.
func NewStatusError(statusCode int, method, path, body string) *StatusError {
	return &StatusError{statusCode: statusCode, method: method, path: path, body: body}
}

func (e *StatusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("%s %s: status %d", e.method, e.path, e.statusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.method, e.path, e.statusCode, e.body)
}

// StatusCode returns the HTTP status code.
func (e *StatusError) StatusCode() int {
	return e.statusCode
}

// NotFound reports whether the server answered 404.
func (e *StatusError) NotFound() bool {
	return e.statusCode == http.StatusNotFound
}
