package api

import (
	"fmt"
	"net/http"

	"github.com/perchworks/perch/internal/common"
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api: %s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("api: %s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap maps authentication statuses onto the shared sentinel so callers
// can match with errors.Is(err, common.ErrUnauthorized).
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return common.ErrUnauthorized
	}
	return nil
}

const maxErrorBody = 256

func newStatusError(method, path string, statusCode int, body []byte) *StatusError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{Method: method, Path: path, StatusCode: statusCode, Body: string(body)}
}

// AttachmentError reports a terminal failure while resolving a single
// attachment. It names the attachment so the caller can decide whether to
// drop it from the post or abort the whole operation.
type AttachmentError struct {
	Index    int
	Filename string
	Phase    string // "reserve", "upload", or "confirm"
	Err      error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("attachment %d (%s): %s failed: %v", e.Index, e.Filename, e.Phase, e.Err)
}

func (e *AttachmentError) Unwrap() error { return e.Err }
