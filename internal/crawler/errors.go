package crawler

import (
	"errors"
	"fmt"
)

// Failure tags recorded against URLs that could not be processed.
const (
	TagFetchFailure          = "FETCH_FAILURE"
	TagTimeout               = "TIMEOUT"
	TagTooManyRedirects      = "TOO_MANY_REDIRECT"
	TagUnknownRequestFailure = "UNKNOWN_REQ_FAILURE"
	TagUnknownFailure        = "UNKNOWN_FAILURE"
)

var (
	// ErrTimeout reports a request that exceeded its deadline.
	ErrTimeout = errors.New("request timed out")
	// ErrTooManyRedirects reports a request that exceeded the redirect limit.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrRequestFailed reports any other transport level failure.
	ErrRequestFailed = errors.New("request failed")
	// ErrDecode reports bytes that could not be decoded as an image.
	ErrDecode = errors.New("image decode failed")
)

// HTTPStatusError reports a response with a non-success status code.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.StatusCode)
}

// ImageTooSmallError reports an image that does not exceed the minimum dimensions.
type ImageTooSmallError struct {
	Width  int
	Height int
}

func (e *ImageTooSmallError) Error() string {
	return fmt.Sprintf("image too small: %dx%d", e.Width, e.Height)
}

// FailureTag maps a per-URL error to the tag stored in the frontier.
// Known kinds are matched first; anything else is UNKNOWN_FAILURE.
func FailureTag(err error) string {
	if err == nil {
		return ""
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("HTTP_STATUS:%d", statusErr.StatusCode)
	}
	var smallErr *ImageTooSmallError
	if errors.As(err, &smallErr) {
		return fmt.Sprintf("IMG_TOO_SMALL:width=%d height=%d", smallErr.Width, smallErr.Height)
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return TagTimeout
	case errors.Is(err, ErrTooManyRedirects):
		return TagTooManyRedirects
	case errors.Is(err, ErrRequestFailed):
		return TagUnknownRequestFailure
	default:
		return TagUnknownFailure
	}
}
