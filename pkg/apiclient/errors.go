package apiclient

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingBody is returned for a POST or PUT dispatched without a body.
	ErrMissingBody = errors.New("request body is required")

	// ErrNoSessionID is returned when a session-start response carries no session ID.
	ErrNoSessionID = errors.New("response did not include a session id")
)

// MissingMockFileError is returned in mock mode when no fixture matches
// the requested URL. It names every path that was tried.
type MissingMockFileError struct {
	URL        string
	Candidates []string
}

func (e *MissingMockFileError) Error() string {
	return fmt.Sprintf("no mock file found for %s (looked for: %s)", e.URL, strings.Join(e.Candidates, ", "))
}

// InvalidMockDirError is returned at client construction when the
// configured fixture root is unusable.
type InvalidMockDirError struct {
	Dir    string
	Reason string
}

func (e *InvalidMockDirError) Error() string {
	return fmt.Sprintf("invalid mock directory %s: %s", e.Dir, e.Reason)
}

// APIError wraps a non-2xx response from the platform.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.URL, e.StatusCode, string(e.Body))
}
