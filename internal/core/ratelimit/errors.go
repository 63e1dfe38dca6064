package ratelimit

import "errors"

var (
	// ErrUnknownService is returned when a caller names a service the
	// limiter was not configured with. This is a usage error, never a
	// silent no-op.
	ErrUnknownService = errors.New("unknown service")

	// ErrInvalidTimeout is returned for negative acquire timeouts.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidRate is returned for non-positive or unreasonable rates.
	ErrInvalidRate = errors.New("invalid rate")

	// ErrInvalidCapacity is returned for non-positive burst capacities.
	ErrInvalidCapacity = errors.New("invalid capacity")
)
