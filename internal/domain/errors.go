package domain

import "errors"

// Error kinds returned by the core. Callers wrap them with context using
// fmt.Errorf("%w: ...") and test for them with errors.Is.
var (
	// ErrInsufficientData: the series is empty or shorter than a strategy's
	// warmup window.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrConfiguration: invalid window sizes, mismatched lengths,
	// non-positive cash and other bad parameters.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrInvalidData: a bar violates the price series invariants.
	ErrInvalidData = errors.New("invalid data")
)

// IsCoreError reports whether err is one of the caller-recoverable core
// error kinds.
func IsCoreError(err error) bool {
	return errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrInvalidData)
}
