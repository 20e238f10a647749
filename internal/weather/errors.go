package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrLocationNotFound is returned when the provider cannot resolve a
	// destination name or location identifier.
	ErrLocationNotFound = errors.New("location not found")

	// ErrMalformedResponse is returned when a payload cannot be decoded or
	// lacks the fields a lookup depends on.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrMissingAPIKey is returned before any network I/O when no credential
	// is configured.
	ErrMissingAPIKey = errors.New("weather api key is not configured")
)

// RemoteLookupError wraps every failure of a Client call.
type RemoteLookupError struct {
	Op         string // "current" or "forecast"
	Query      string // destination name or location id
	StatusCode int    // 0 when no response was received
	Err        error
}

func (e *RemoteLookupError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("weather %s lookup %q: status %d: %v", e.Op, e.Query, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("weather %s lookup %q: %v", e.Op, e.Query, e.Err)
}

func (e *RemoteLookupError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a lookup failure for an unknown location.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLocationNotFound)
}
