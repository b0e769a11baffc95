package mail

import (
	"errors"
	"fmt"
)

// Delivery failures are split into two classes. Transient failures are
// worth retrying with backoff; permanent failures (bad address, hard
// bounce) must not be retried.

// TransientError marks a delivery failure that may succeed on retry.
type TransientError struct {
	Message string
	Err     error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient delivery error: %s: %v", e.Message, e.Err)
	}
	return "transient delivery error: " + e.Message
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a delivery failure that retrying cannot fix.
type PermanentError struct {
	Message string
	Err     error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent delivery error: %s: %v", e.Message, e.Err)
	}
	return "permanent delivery error: " + e.Message
}

func (e *PermanentError) Unwrap() error { return e.Err }

// ErrRateLimited signals backpressure from the transport's own quota.
// It is treated as transient with mandatory backoff.
var ErrRateLimited = &TransientError{Message: "transport rate limit exceeded"}

// Transient wraps err as a retryable failure.
func Transient(message string, err error) error {
	return &TransientError{Message: message, Err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(message string, err error) error {
	return &PermanentError{Message: message, Err: err}
}

// IsPermanent reports whether err is a non-retryable delivery failure.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsTransient reports whether err is a retryable delivery failure.
// Unclassified errors (network blips, timeouts) default to transient.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
