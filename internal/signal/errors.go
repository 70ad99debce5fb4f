package signal

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderingViolation is returned when a sample's timestamp is not
	// strictly greater than the last timestamp already stored.
	ErrOrderingViolation = errors.New("sample timestamp is not strictly increasing")

	// ErrInvalidArgument is returned for non-positive periods, durations and
	// similar configuration mistakes. These are never silently corrected.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNonFinite is returned for a sample whose timestamp or value is NaN
	// or infinite. It wraps ErrInvalidArgument.
	ErrNonFinite = fmt.Errorf("non-finite sample: %w", ErrInvalidArgument)
)
