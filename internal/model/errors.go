package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the failure taxonomy. Stage implementations wrap these
// with %w so callers can classify with errors.Is.
var (
	// ErrInvalidInput marks a malformed URL, rejected before admission.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means the extraction backend could not find the media.
	ErrNotFound = errors.New("media not found")

	// ErrPrivate means the media exists but is not accessible.
	ErrPrivate = errors.New("media is private")

	// ErrNetwork marks a transient network failure; retried with backoff.
	ErrNetwork = errors.New("network error")

	// ErrSizeExceeded means every tier, audio included, was over the limit.
	ErrSizeExceeded = errors.New("size limit exceeded at every quality")

	// ErrCompressionFailed marks a failed compression pass; the caller
	// proceeds to a tier downgrade.
	ErrCompressionFailed = errors.New("compression failed")

	// ErrTimeout marks a stage that exceeded its deadline; retried like
	// a network error.
	ErrTimeout = errors.New("stage timed out")

	// ErrStorageFailure means the backing store is unreachable. Admission
	// fails closed on this.
	ErrStorageFailure = errors.New("storage unavailable")

	// ErrQueueFull means the scheduler's intake queue is at capacity.
	ErrQueueFull = errors.New("download queue is full")
)

// RateLimitError is returned on quota denial and carries the time until the
// user's window resets.
type RateLimitError struct {
	RetryAfter time.Duration
	Limit      int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit of %d reached, retry in %s", e.Limit, e.RetryAfter.Round(time.Second))
}

// FailureCause is the closed set of terminal failure categories reported on
// jobs and mapped to user-facing messages.
type FailureCause string

const (
	CauseNone          FailureCause = ""
	CauseInvalidInput  FailureCause = "invalid_input"
	CauseRateLimited   FailureCause = "rate_limited"
	CauseNotFound      FailureCause = "not_found"
	CausePrivate       FailureCause = "private"
	CauseNetwork       FailureCause = "network"
	CauseSizeExceeded  FailureCause = "size_exceeded"
	CauseCompression   FailureCause = "compression_failed"
	CauseTimeout       FailureCause = "timeout"
	CauseStorage       FailureCause = "storage_failure"
	CauseCancelled     FailureCause = "cancelled"
	CauseUnknown       FailureCause = "unknown"
)

// CauseOf classifies an error into its failure category.
func CauseOf(err error) FailureCause {
	var rl *RateLimitError
	switch {
	case err == nil:
		return CauseNone
	case errors.As(err, &rl):
		return CauseRateLimited
	case errors.Is(err, ErrInvalidInput):
		return CauseInvalidInput
	case errors.Is(err, ErrNotFound):
		return CauseNotFound
	case errors.Is(err, ErrPrivate):
		return CausePrivate
	case errors.Is(err, ErrNetwork):
		return CauseNetwork
	case errors.Is(err, ErrSizeExceeded):
		return CauseSizeExceeded
	case errors.Is(err, ErrCompressionFailed):
		return CauseCompression
	case errors.Is(err, ErrTimeout):
		return CauseTimeout
	case errors.Is(err, ErrStorageFailure):
		return CauseStorage
	}
	return CauseUnknown
}

// IsTransient reports whether the error category is retried locally with
// backoff before being surfaced.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}
