package core

import "errors"

var (
	// ErrAlreadyCleared is returned when a balance-clearing entry already
	// exists for the member and month.
	ErrAlreadyCleared = errors.New("outstanding balance already cleared for this month")

	// ErrNothingToClear is returned when a clear is requested but the member's
	// final balance for the month is zero or negative.
	ErrNothingToClear = errors.New("no outstanding balance to clear")

	// ErrMemberNotFound is returned when a referenced member is absent from
	// the registry.
	ErrMemberNotFound = errors.New("member not found")
)
