package types

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrTooManyRedirects is returned once a redirect chain exceeds the bound.
var ErrTooManyRedirects = errors.New("too many redirects")

// StatusError is raised when the primary fetch terminates on a 4xx/5xx.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("error fetching %s: status %d", e.URL, e.Code)
}

// NewStatusError builds a StatusError for the given status and url.
func NewStatusError(code int, url string) error {
	return &StatusError{Code: code, URL: url}
}

// StatusOf extracts the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// UnsupportedProtocolError is raised for a disabled or unknown URL scheme.
type UnsupportedProtocolError struct {
	Scheme string
}

func (e *UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol is disabled", e.Scheme)
}
