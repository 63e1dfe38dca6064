package client

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a provider call failure so callers can decide whether to
// retry, surface credentials problems, or give up.
type Kind string

const (
	// KindAdmission means the local resilience layer refused the call
	// before any network traffic: waiter gate saturated, backoff active,
	// or the acquire timeout elapsed with no token.
	KindAdmission Kind = "admission"

	// KindThrottled means the provider answered 429 (or equivalent). The
	// limiter has already been told to back off.
	KindThrottled Kind = "throttled"

	// KindAuth means the provider rejected our credentials.
	KindAuth Kind = "auth"

	// KindNotFound means the requested resource does not exist.
	KindNotFound Kind = "not_found"

	// KindTransient covers network-level failures worth retrying.
	KindTransient Kind = "transient"

	// KindProvider covers unexpected provider responses.
	KindProvider Kind = "provider"

	// KindBadRequest means the caller supplied an invalid endpoint or
	// parameters; retrying without changes cannot succeed.
	KindBadRequest Kind = "bad_request"
)

// Error is the typed failure returned by Fetch.
type Error struct {
	Service    string
	Kind       Kind
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s: %s", e.Service, e.Kind, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf extracts the classification from err, or empty if err is not a
// client error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsRetryable reports whether the failure may succeed on a later attempt
// without caller changes.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindAdmission, KindThrottled, KindTransient:
		return true
	}
	return false
}
