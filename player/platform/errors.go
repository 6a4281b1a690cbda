package platform

import (
	"errors"
	"fmt"
)

// Common resolver errors that can be checked with errors.Is.
var (
	// ErrNotFound is returned when a track or its assets do not exist.
	ErrNotFound = errors.New("platform: resource not found")

	// ErrRateLimited is returned when the aggregator rate limit is hit.
	ErrRateLimited = errors.New("platform: rate limit exceeded")

	// ErrUnavailable is returned when the aggregator fails or has no playable asset.
	ErrUnavailable = errors.New("platform: content unavailable")

	// ErrUnsupported is returned when a source does not support an operation.
	ErrUnsupported = errors.New("platform: feature not supported")

	// ErrCircuitOpen is returned while the circuit breaker rejects calls.
	ErrCircuitOpen = errors.New("platform: circuit open")
)

// PlatformError wraps an error with the source and resource that produced it.
type PlatformError struct {
	// Platform is the provider tag (e.g. "netease", "kuwo").
	Platform string

	// Resource is what was being fetched ("search", "url", "pic", "lyric").
	Resource string

	// ID identifies the resource, if any.
	ID string

	Err error
}

func (e *PlatformError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Platform, e.Resource, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Platform, e.Resource, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a PlatformError for a missing resource.
func NewNotFoundError(platform, resource, id string) error {
	return &PlatformError{Platform: platform, Resource: resource, ID: id, Err: ErrNotFound}
}

// NewRateLimitedError creates a PlatformError for rate limit errors.
func NewRateLimitedError(platform, resource string) error {
	return &PlatformError{Platform: platform, Resource: resource, Err: ErrRateLimited}
}

// NewUnavailableError creates a PlatformError for unavailable content.
// detail, when non-empty, is appended to the sentinel.
func NewUnavailableError(platform, resource, id, detail string) error {
	err := ErrUnavailable
	if detail != "" {
		err = fmt.Errorf("%w: %s", ErrUnavailable, detail)
	}
	return &PlatformError{Platform: platform, Resource: resource, ID: id, Err: err}
}

// NewUnsupportedError creates a PlatformError for unsupported operations.
func NewUnsupportedError(platform, resource string) error {
	return &PlatformError{Platform: platform, Resource: resource, Err: ErrUnsupported}
}

// IsRetryable reports whether err is a transient failure worth retrying later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrCircuitOpen)
}
