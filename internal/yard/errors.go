package yard

import "errors"

var (
	// ErrAllocationExhausted means no eligible stockyard has free capacity.
	ErrAllocationExhausted = errors.New("allocation exhausted: no eligible stockyard with free capacity")

	// ErrNotEligible means a merge/split precondition is violated. The
	// catalog is guaranteed unchanged when this is returned.
	ErrNotEligible = errors.New("stockyard not eligible for merge/split")

	// ErrPileFull means a push would exceed the slot's max ingot count.
	ErrPileFull = errors.New("pile full")

	// ErrPileEmpty means a pop/peek on a slot without ingots.
	ErrPileEmpty = errors.New("pile empty")

	// ErrNotFound means the referenced stockyard does not exist.
	ErrNotFound = errors.New("stockyard not found")

	// ErrYardNumberTaken means a yard number collision on insert.
	ErrYardNumberTaken = errors.New("yard number already in use")
)
