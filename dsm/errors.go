package dsm

import (
	"fmt"
	"net/http"
)

// ErrAuth indicates the Storage Manager rejected the provided credentials.
var ErrAuth = fmt.Errorf("Authentication failed")

// ErrTimeout indicates the Storage Manager did not respond within the configured bound.
var ErrTimeout = fmt.Errorf("Request timed out")

// ErrNotFound indicates a name search returned no matches.
var ErrNotFound = fmt.Errorf("Not found")

// ErrAmbiguousMatch indicates a name search returned more than one match.
var ErrAmbiguousMatch = fmt.Errorf("Ambiguous match")

// StatusErrorf returns a new StatusError containing the specified status and message.
func StatusErrorf(status int, format string, a ...any) *StatusError {
	return &StatusError{
		status: status,
		msg:    fmt.Sprintf(format, a...),
	}
}

// StatusError error type that contains an HTTP status code and message.
type StatusError struct {
	status int
	msg    string
}

// Error returns the error message or the http.StatusText() of the status code if message is empty.
func (e *StatusError) Error() string {
	if e.msg != "" {
		return e.msg
	}

	return http.StatusText(e.status)
}

// Status returns the HTTP status code.
func (e *StatusError) Status() int {
	return e.status
}

// StatusErrorCheck returns whether err is a StatusError with one of the given statuses.
func StatusErrorCheck(err error, matchStatus ...int) bool {
	statusErr, ok := err.(*StatusError)
	if !ok {
		return false
	}

	for _, status := range matchStatus {
		if statusErr.Status() == status {
			return true
		}
	}

	return false
}
