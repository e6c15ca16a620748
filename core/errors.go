package core

import "errors"

var (
	// ErrInvalidArgument marks a scenario configuration that cannot be built:
	// bad layer count, bulk count above station count, warm-up not before the
	// end of the run, unknown PHY selector.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCapacityExceeded marks a cell or station index outside the range of
	// the addressing scheme.
	ErrCapacityExceeded = errors.New("capacity exceeded")
)
