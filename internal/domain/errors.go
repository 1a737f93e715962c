package domain

import "errors"

var (
	// ErrMissingField is returned when an expected counter column is absent.
	ErrMissingField = errors.New("missing field")

	// ErrFitFailed is returned when a trend curve cannot be fitted or
	// projects an unusable value.
	ErrFitFailed = errors.New("curve fit failed")

	// ErrNoHistory is returned when a region has no usable history.
	ErrNoHistory = errors.New("no history")

	// ErrNoObservations signals that the whole observation set is absent and
	// there is nothing to check.
	ErrNoObservations = errors.New("no observations")
)
